// Command rtpmidid is a thin reference host process for the rtpmidi
// session engine. It ticks a Session at a fixed cadence, logs
// connection/MIDI/error events via slog, and optionally serves
// /metrics and /devices over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-rtpmidi/rtpmidi"
	"github.com/go-rtpmidi/rtpmidi/internal/config"
	"github.com/go-rtpmidi/rtpmidi/internal/eventlog"
	"github.com/go-rtpmidi/rtpmidi/internal/metrics"
)

// tickInterval is the engine's drive cadence.
const tickInterval = 10 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtpmidid:", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	recorder, err := openEventlog(cfg)
	if err != nil {
		logger.Error("eventlog disabled", "error", err)
		recorder = eventlog.NoopRecorder{}
	}
	defer recorder.Close()

	connListener := &connectionLogger{logger: logger, recorder: recorder}

	sess := rtpmidi.New(rtpmidi.Options{
		SessionName:    cfg.SessionName,
		ListenPort:     cfg.ListenPort,
		JournalEnabled: cfg.JournalOn,
		Logger:         logger,
		OnConnection:   connListener,
		OnMIDI: func(deviceID string, ev rtpmidi.Event) {
			logger.Debug("midi event", "device_id", deviceID, "type", ev.Type, "channel", ev.Channel)
		},
		OnError: func(kind rtpmidi.ErrorKind, detail error) {
			logger.Warn("session error", "kind", kind.String(), "error", detail)
			_ = recorder.Record(context.Background(), eventlog.Event{
				Kind:      eventlog.Errored,
				Detail:    kind.String(),
				Timestamp: time.Now(),
			})
		},
	})

	if err := sess.Start(); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	for _, target := range parseConnectTargets(cfg.ConnectTo) {
		if err := sess.ConnectToListener(target.host, target.port); err != nil {
			logger.Error("connect failed", "host", target.host, "port", target.port, "error", err)
		}
	}

	errCh := make(chan error, 1)
	var httpSrv *http.Server
	if cfg.HTTPEnabled() {
		httpSrv = newHTTPServer(cfg, sess)
		go func() {
			logger.Info("http server listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	stopTicking := make(chan struct{})
	go runTickLoop(sess, stopTicking)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server error", "error", err)
	}

	close(stopTicking)

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if err := sess.Stop(); err != nil {
		logger.Error("session stop error", "error", err)
	}
	logger.Info("rtpmidid stopped")
}

// runTickLoop drives the Session at tickInterval until stop is closed.
func runTickLoop(sess *rtpmidi.Session, stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sess.Tick()
		}
	}
}

// connectionLogger bridges Session attach/detach notifications to slog
// and the optional eventlog recorder.
type connectionLogger struct {
	logger   *slog.Logger
	recorder eventlog.Recorder
}

func (c *connectionLogger) OnAttached(deviceID string) {
	c.logger.Info("device attached", "device_id", deviceID)
	_ = c.recorder.Record(context.Background(), eventlog.Event{
		DeviceID: deviceID, Kind: eventlog.Attached, Timestamp: time.Now(),
	})
}

func (c *connectionLogger) OnDetached(deviceID string) {
	c.logger.Info("device detached", "device_id", deviceID)
	_ = c.recorder.Record(context.Background(), eventlog.Event{
		DeviceID: deviceID, Kind: eventlog.Detached, Timestamp: time.Now(),
	})
}

// openEventlog opens the SQLite-backed recorder under a data directory
// derived from the session name, or returns an error if unavailable; the
// caller falls back to eventlog.NoopRecorder.
func openEventlog(cfg *config.Config) (eventlog.Recorder, error) {
	return eventlog.Open("./data/" + cfg.SessionName)
}

// newHTTPServer builds the optional debug HTTP server:
// /metrics for Prometheus scraping and /devices for a JSON snapshot of the
// participant table.
func newHTTPServer(cfg *config.Config, sess *rtpmidi.Session) *http.Server {
	collector := metrics.NewCollector(sess, sess, sess, time.Now())
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/devices", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sess.ListDevices()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

type connectTarget struct {
	host string
	port int
}

// parseConnectTargets parses the -connect flag value: a single
// comma-separated string of host:port targets. The flag is not
// repeatable; given twice, only the last value is kept.
func parseConnectTargets(raw string) []connectTarget {
	if raw == "" {
		return nil
	}
	var targets []connectTarget
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, portStr, ok := strings.Cut(part, ":")
		if !ok {
			slog.Warn("ignoring malformed -connect target", "value", part)
			continue
		}
		port, err := parsePort(portStr)
		if err != nil {
			slog.Warn("ignoring malformed -connect target", "value", part, "error", err)
			continue
		}
		targets = append(targets, connectTarget{host: host, port: port})
	}
	return targets
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	if err != nil {
		return 0, err
	}
	return port, nil
}
