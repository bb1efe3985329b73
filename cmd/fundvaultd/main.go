package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundvault/config"
	"fundvault/core/events"
	"fundvault/core/state"
	"fundvault/native/campaign"
	"fundvault/native/token"
	"fundvault/observability/logging"
	"fundvault/observability/otel"
	"fundvault/rpc"
	"fundvault/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.ServiceName, cfg.Environment, logging.Options{
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	hub := events.NewHub(cfg.EventBacklog)

	tokens := token.NewRegistry(manager)

	engine := campaign.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(hub)
	engine.SetAssetResolver(tokens)
	engine.SetReceiptResolver(tokens)

	admin, err := campaign.ParseAddress(cfg.PlatformAdmin)
	if err != nil {
		logger.Error("invalid platform admin address", "error", err)
		os.Exit(1)
	}
	registry := campaign.NewRegistry(engine, admin)
	registry.SetProvisioner(tokens)
	for _, symbol := range cfg.AllowedAssets {
		if err := registry.AllowAsset(admin, symbol); err != nil {
			logger.Error("failed to allow asset", "asset", symbol, "error", err)
			os.Exit(1)
		}
	}
	if cfg.PlatformWallet != "" {
		wallet, err := campaign.ParseAddress(cfg.PlatformWallet)
		if err != nil {
			logger.Error("invalid platform wallet address", "error", err)
			os.Exit(1)
		}
		if err := registry.SetPlatformWallet(admin, wallet); err != nil {
			logger.Error("failed to set platform wallet", "error", err)
			os.Exit(1)
		}
	}

	server := rpc.NewServer(registry, tokens, hub)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Handler(), "fundvault.rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("rpc server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
}
