package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

// Config is the effective CLI configuration: defaults, overridden by the
// TOML file when present, overridden by XSHELL_* environment variables.
type Config struct {
	Endpoint       string
	Shell          string
	Prompt         string
	RequestTimeout time.Duration
	Reconnect      bool
	ReconnectMax   int
	ReconnectDelay time.Duration
	Scrollback     int
	BookmarkDB     string
	LogLevel       string
}

func defaultConfig() Config {
	return Config{
		Endpoint:       "ws://localhost:3000/terminal",
		Prompt:         "$ ",
		RequestTimeout: 30 * time.Second,
		ReconnectMax:   10,
		ReconnectDelay: time.Second,
		Scrollback:     1 << 16,
		LogLevel:       "warn",
	}
}

type fileConfig struct {
	Endpoint       string `toml:"endpoint"`
	Shell          string `toml:"shell"`
	Prompt         string `toml:"prompt"`
	RequestTimeout string `toml:"request_timeout"`
	Reconnect      bool   `toml:"reconnect"`
	ReconnectMax   int    `toml:"reconnect_max_attempts"`
	ReconnectDelay string `toml:"reconnect_delay"`
	Scrollback     int    `toml:"scrollback_bytes"`
	BookmarkDB     string `toml:"bookmark_db"`
	LogLevel       string `toml:"log_level"`
}

type envConfig struct {
	Endpoint       string        `env:"XSHELL_ENDPOINT"`
	Shell          string        `env:"XSHELL_SHELL"`
	Prompt         string        `env:"XSHELL_PROMPT"`
	RequestTimeout time.Duration `env:"XSHELL_REQUEST_TIMEOUT"`
	BookmarkDB     string        `env:"XSHELL_BOOKMARK_DB"`
	LogLevel       string        `env:"XSHELL_LOG_LEVEL"`
}

// loadConfig builds the effective configuration. A missing file is only an
// error when the caller named it explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			if explicit {
				return Config{}, err
			}
		}
	}

	var env envConfig
	if err := envdecode.Decode(&env); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if env.Endpoint != "" {
		cfg.Endpoint = env.Endpoint
	}
	if env.Shell != "" {
		cfg.Shell = env.Shell
	}
	if env.Prompt != "" {
		cfg.Prompt = env.Prompt
	}
	if env.RequestTimeout > 0 {
		cfg.RequestTimeout = env.RequestTimeout
	}
	if env.BookmarkDB != "" {
		cfg.BookmarkDB = env.BookmarkDB
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("shell") {
		cfg.Shell = strings.TrimSpace(raw.Shell)
	}
	if meta.IsDefined("prompt") {
		cfg.Prompt = raw.Prompt
	}
	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if meta.IsDefined("reconnect") {
		cfg.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("reconnect_max_attempts") {
		cfg.ReconnectMax = raw.ReconnectMax
	}
	if meta.IsDefined("reconnect_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReconnectDelay))
		if err != nil {
			return fmt.Errorf("parse reconnect_delay: %w", err)
		}
		cfg.ReconnectDelay = d
	}
	if meta.IsDefined("scrollback_bytes") {
		cfg.Scrollback = raw.Scrollback
	}
	if meta.IsDefined("bookmark_db") {
		cfg.BookmarkDB = strings.TrimSpace(raw.BookmarkDB)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return nil
}
