package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the rtpmidid driver.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	SessionName string
	ListenPort  int
	HTTPPort    int // 0 disables the metrics/devices HTTP server
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	ConnectTo   string // optional comma-separated "host:port" list to invite on startup
	JournalOn   bool
}

// defaults
const (
	defaultSessionName = "rtpmidid"
	defaultListenPort  = 5004
	defaultHTTPPort    = 0
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
)

// envPrefix is the prefix for all rtpmidid environment variables.
const envPrefix = "RTPMIDI_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("rtpmidid", flag.ContinueOnError)

	fs.StringVar(&cfg.SessionName, "session-name", defaultSessionName, "AppleMIDI session name advertised to peers")
	fs.IntVar(&cfg.ListenPort, "listen-port", defaultListenPort, "UDP control port (data port is listen-port+1)")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP port for /metrics and /devices (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.ConnectTo, "connect", "", "host:port of a remote listener to invite on startup")
	fs.BoolVar(&cfg.JournalOn, "journal", false, "enable recovery journal emission")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"session-name": envPrefix + "SESSION_NAME",
		"listen-port":  envPrefix + "LISTEN_PORT",
		"http-port":    envPrefix + "HTTP_PORT",
		"log-level":    envPrefix + "LOG_LEVEL",
		"log-format":   envPrefix + "LOG_FORMAT",
		"connect":      envPrefix + "CONNECT",
		"journal":      envPrefix + "JOURNAL",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "session-name":
			cfg.SessionName = val
		case "listen-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ListenPort = v
			}
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "connect":
			cfg.ConnectTo = val
		case "journal":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.JournalOn = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65534 {
		return fmt.Errorf("listen-port must be between 1 and 65534, got %d", c.ListenPort)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 0 and 65535, got %d", c.HTTPPort)
	}
	if c.SessionName == "" {
		return fmt.Errorf("session-name must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// HTTPEnabled reports whether the metrics/devices HTTP server should start.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPPort != 0
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
