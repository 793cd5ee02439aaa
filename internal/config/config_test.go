package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, env := range []string{
		"RTPMIDI_SESSION_NAME", "RTPMIDI_LISTEN_PORT", "RTPMIDI_HTTP_PORT",
		"RTPMIDI_LOG_LEVEL", "RTPMIDI_LOG_FORMAT", "RTPMIDI_CONNECT", "RTPMIDI_JOURNAL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"rtpmidid"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SessionName != defaultSessionName {
		t.Errorf("SessionName = %q, want %q", cfg.SessionName, defaultSessionName)
	}
	if cfg.ListenPort != defaultListenPort {
		t.Errorf("ListenPort = %d, want %d", cfg.ListenPort, defaultListenPort)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.JournalOn {
		t.Errorf("JournalOn = true, want false")
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"rtpmidid"}
	t.Setenv("RTPMIDI_LISTEN_PORT", "6004")
	t.Setenv("RTPMIDI_SESSION_NAME", "studio")
	t.Setenv("RTPMIDI_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenPort != 6004 {
		t.Errorf("ListenPort = %d, want 6004", cfg.ListenPort)
	}
	if cfg.SessionName != "studio" {
		t.Errorf("SessionName = %q, want studio", cfg.SessionName)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	os.Args = []string{"rtpmidid", "--listen-port", "7004", "--log-level", "warn"}
	t.Setenv("RTPMIDI_LISTEN_PORT", "6004")
	t.Setenv("RTPMIDI_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenPort != 7004 {
		t.Errorf("ListenPort = %d, want 7004 (CLI should override env)", cfg.ListenPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"rtpmidid", "--listen-port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"rtpmidid", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateEmptySessionName(t *testing.T) {
	os.Args = []string{"rtpmidid", "--session-name", ""}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for empty session name")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
