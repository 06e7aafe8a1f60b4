// Package config loads relay server configuration from an optional TOML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the relay server settings.
type Config struct {
	// Port the HTTP/WebSocket server listens on.
	Port string
	// FramesDir is the root directory holding per-session frame artifacts.
	FramesDir string
	// JournalPath is the SQLite relay event journal file. Empty disables
	// the journal.
	JournalPath string
	// FrameInterval is the broadcast cadence between frames.
	FrameInterval time.Duration
	// StopWait bounds how long stop_broadcast waits for a run to unwind.
	StopWait time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:          "8080",
		FramesDir:     "data/frames",
		JournalPath:   "data/relay.db",
		FrameInterval: 33 * time.Millisecond,
		StopWait:      5 * time.Second,
	}
}

type fileConfig struct {
	Port          string `toml:"port"`
	FramesDir     string `toml:"frames_dir"`
	JournalPath   string `toml:"journal_db"`
	FrameInterval string `toml:"frame_interval"`
	StopWait      string `toml:"stop_wait"`
}

// Load returns the defaults overlaid with the TOML file at path (skipped
// when path is empty) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}

		if meta.IsDefined("port") && strings.TrimSpace(raw.Port) != "" {
			cfg.Port = strings.TrimSpace(raw.Port)
		}
		if meta.IsDefined("frames_dir") && strings.TrimSpace(raw.FramesDir) != "" {
			cfg.FramesDir = strings.TrimSpace(raw.FramesDir)
		}
		if meta.IsDefined("journal_db") {
			cfg.JournalPath = strings.TrimSpace(raw.JournalPath)
		}
		if meta.IsDefined("frame_interval") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.FrameInterval))
			if err != nil {
				return Config{}, fmt.Errorf("parse frame_interval: %w", err)
			}
			cfg.FrameInterval = d
		}
		if meta.IsDefined("stop_wait") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.StopWait))
			if err != nil {
				return Config{}, fmt.Errorf("parse stop_wait: %w", err)
			}
			cfg.StopWait = d
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.FramesDir = getEnv("FRAMES_DIR", c.FramesDir)
	if v, ok := os.LookupEnv("JOURNAL_DB"); ok {
		c.JournalPath = v
	}
	if v := os.Getenv("FRAME_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse FRAME_INTERVAL: %w", err)
		}
		c.FrameInterval = d
	}
	if v := os.Getenv("STOP_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse STOP_WAIT: %w", err)
		}
		c.StopWait = d
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
