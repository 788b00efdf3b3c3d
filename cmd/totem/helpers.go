package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	chatclient "github.com/totem-tech/chatclient-go"
)

// session bundles a client with everything that must be released with it.
type session struct {
	cfg    chatclient.Config
	client *chatclient.Client
	store  *chatclient.LevelDBStore
	log    *zap.Logger
	srv    *http.Server
}

// openSession builds a client from the config: zap logger, LevelDB settings
// store, and a /metrics endpoint when metrics_addr is set.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := chatclient.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(dir, "data")
	}
	store, err := chatclient.OpenLevelDBStore(dataDir)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, store: store, log: log}

	opts := append(cfg.Options(),
		chatclient.WithStore(store),
		chatclient.WithLogger(log),
		chatclient.WithTransportConfig(cfg.TransportConfig()),
	)
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, chatclient.WithMetrics(chatclient.NewMetrics(reg)))
		s.srv = serveMetrics(cfg.MetricsAddr, reg, log)
	}

	s.client = chatclient.NewClient(cfg.ServerURL(), opts...)
	return s, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		s.log.Debug("close client", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("close settings store", zap.Error(err))
	}
	if s.srv != nil {
		_ = s.srv.Shutdown(context.Background())
	}
	_ = s.log.Sync()
}

// withSession runs fn with an open session and a context bounded by --timeout.
func withSession(fn func(ctx context.Context, s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()
	if lang := s.cfg.Language; lang != "" && lang != "en" {
		if err := s.client.LoadErrorMessages(ctx, lang); err != nil {
			s.log.Warn("error messages not localized", zap.String("lang", lang), zap.Error(err))
		}
	}
	return fn(ctx, s)
}

// printResult prints v as indented JSON.
func printResult(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(w, string(b))
	return nil
}

// parseArg reads a command-line argument as JSON, falling back to a plain
// string.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
