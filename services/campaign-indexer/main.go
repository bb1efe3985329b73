package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"fundvault/core/events"
	"fundvault/observability/logging"
)

const (
	envListen = "INDEXER_LISTEN"
	envNodeWS = "INDEXER_NODE_WS"
	envDBPath = "INDEXER_DB"

	defaultListen = "127.0.0.1:8646"
	defaultNodeWS = "ws://127.0.0.1:8645/ws/events"
	defaultDBPath = "./campaign-indexer.db"

	reconnectDelay = 3 * time.Second
)

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func main() {
	logger := logging.Setup("campaign-indexer", envOr("INDEXER_ENV", ""), logging.Options{})

	store, err := NewStore(envOr(envDBPath, defaultDBPath))
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeWS := envOr(envNodeWS, defaultNodeWS)
	go consumeEvents(ctx, logger, store, nodeWS)

	listen := envOr(envListen, defaultListen)
	server := &http.Server{
		Addr:              listen,
		Handler:           newRouter(store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("indexer listening", "addr", listen, "node", nodeWS)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
}

// consumeEvents keeps a websocket subscription to the node's event stream
// alive, resuming from the latest stored sequence after every reconnect. When
// the node rejects the stored cursor because its sequence counter restarted,
// the next attempt falls back to cursor 0 and re-observes the stream; replayed
// sequences are dropped by the store's unique index.
func consumeEvents(ctx context.Context, logger *slog.Logger, store *Store, nodeWS string) {
	var resetCursor bool
	for {
		if ctx.Err() != nil {
			return
		}
		cursor, err := store.LatestSequence()
		if err != nil {
			logger.Error("failed to read cursor", "error", err)
		}
		if resetCursor {
			cursor = 0
			resetCursor = false
		}
		if err := streamOnce(ctx, store, nodeWS, cursor); err != nil && ctx.Err() == nil {
			if websocket.CloseStatus(err) == websocket.StatusPolicyViolation {
				logger.Warn("stored cursor beyond stream head, resetting", "cursor", cursor)
				resetCursor = true
			} else {
				logger.Warn("event stream interrupted", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func streamOnce(ctx context.Context, store *Store, nodeWS string, cursor uint64) error {
	url := fmt.Sprintf("%s?cursor=%d", nodeWS, cursor)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "consumer closing")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var record events.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := store.Insert(record); err != nil {
			return fmt.Errorf("store event: %w", err)
		}
	}
}
