package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crucial707/radar/internal/config"
	"github.com/crucial707/radar/internal/db"
	"github.com/crucial707/radar/internal/scheduler"
	"github.com/crucial707/radar/internal/store"
	"github.com/crucial707/radar/internal/store/memstore"
	"github.com/crucial707/radar/internal/store/postgres"
	"github.com/crucial707/radar/internal/store/rest"
)

func main() {
	// Load configuration
	cfg := config.Load()
	setupLogger(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the store FIRST
	client, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("store ready", "backend", cfg.StoreBackend)

	a, err := newApp(client, cfg)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := scheduler.Run(ctx, a.jobs(cfg)); err != nil {
			slog.Error("scheduler stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server LAST
	errc := make(chan error, 1)
	go func() {
		tls := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
		slog.Info("starting server", "addr", srv.Addr, "tls", tls)
		if tls {
			errc <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}
}

func setupLogger(format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (store.Client, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		dsn := db.DSN(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
		sqlDB, err := db.Connect(ctx, dsn, db.Options{
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(dsn); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return postgres.New(sqlDB), func() { sqlDB.Close() }, nil
	case config.BackendMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return memstore.New(memstore.DefaultTables()), func() {}, nil
	default:
		return rest.New(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StoreTimeout), func() {}, nil
	}
}
