// Package config loads bridge configuration from an optional YAML file
// with MT5BRIDGE_* environment overrides on top.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Terminal selects and tunes the session driver.
type Terminal struct {
	// Mode is "rpc" (real terminal gateway) or "sim".
	Mode string `yaml:"mode"`
	// GatewayURL is the terminal-side HTTP gateway, rpc mode only.
	GatewayURL string `yaml:"gateway_url"`
	// CallTimeout bounds each driver call.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Stream tunes the sampling loop.
type Stream struct {
	WatchList      []string      `yaml:"watch_list"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	SnapshotEvery  int64         `yaml:"snapshot_every"`
}

// Config is the full process configuration.
type Config struct {
	Listen   string   `yaml:"listen"`
	APIKey   string   `yaml:"api_key"`
	LogLevel string   `yaml:"log_level"`
	LogFile  string   `yaml:"log_file"`
	DataDir  string   `yaml:"data_dir"`
	Terminal Terminal `yaml:"terminal"`
	Stream   Stream   `yaml:"stream"`
}

func defaults() *Config {
	return &Config{
		Listen:   ":6542",
		LogLevel: "info",
		DataDir:  "data",
		Terminal: Terminal{
			Mode:        "rpc",
			GatewayURL:  "http://localhost:6543",
			CallTimeout: 10 * time.Second,
		},
		Stream: Stream{
			SampleInterval: time.Second,
			SnapshotEvery:  5,
		},
	}
}

// Load reads path when it exists (an empty path or a missing file is
// fine), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, errors.Wrap(err, "parse config")
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Listen, "MT5BRIDGE_LISTEN")
	setString(&cfg.APIKey, "MT5BRIDGE_API_KEY")
	setString(&cfg.LogLevel, "MT5BRIDGE_LOG_LEVEL")
	setString(&cfg.LogFile, "MT5BRIDGE_LOG_FILE")
	setString(&cfg.DataDir, "MT5BRIDGE_DATA_DIR")
	setString(&cfg.Terminal.Mode, "MT5BRIDGE_TERMINAL_MODE")
	setString(&cfg.Terminal.GatewayURL, "MT5BRIDGE_GATEWAY_URL")
	setDuration(&cfg.Terminal.CallTimeout, "MT5BRIDGE_CALL_TIMEOUT")
	setDuration(&cfg.Stream.SampleInterval, "MT5BRIDGE_SAMPLE_INTERVAL")
	setInt64(&cfg.Stream.SnapshotEvery, "MT5BRIDGE_SNAPSHOT_EVERY")
	if v := os.Getenv("MT5BRIDGE_WATCH_LIST"); v != "" {
		var list []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		cfg.Stream.WatchList = list
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
