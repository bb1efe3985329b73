package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LogConfig controls the structured logging sinks.
type LogConfig struct {
	FilePath   string `toml:"FilePath,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
}

// TelemetryConfig controls the OpenTelemetry exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure,omitempty"`
	Metrics  bool   `toml:"Metrics,omitempty"`
	Traces   bool   `toml:"Traces,omitempty"`
}

// Config is the daemon configuration.
type Config struct {
	ListenAddress  string          `toml:"ListenAddress"`
	DataDir        string          `toml:"DataDir"`
	ServiceName    string          `toml:"ServiceName"`
	Environment    string          `toml:"Environment,omitempty"`
	PlatformAdmin  string          `toml:"PlatformAdmin"`
	PlatformWallet string          `toml:"PlatformWallet,omitempty"`
	AllowedAssets  []string        `toml:"AllowedAssets"`
	EventBacklog   int             `toml:"EventBacklog,omitempty"`
	Log            LogConfig       `toml:"Log,omitempty"`
	Telemetry      TelemetryConfig `toml:"Telemetry,omitempty"`
}

const (
	defaultListenAddress = "127.0.0.1:8645"
	defaultDataDir       = "./fundvault-data"
	defaultServiceName   = "fundvault"
)

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.AllowedAssets == nil {
		cfg.AllowedAssets = []string{}
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.PlatformAdmin) == "" {
		return fmt.Errorf("config: PlatformAdmin is required")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("config: wrote default config to %s; set PlatformAdmin and restart", path)
}
