package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyaneshwarpardhi/flowcanvas/internal/api"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/catalog"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/config"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/engine"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/executor"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/session"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/store"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/store/badger"
	"github.com/gyaneshwarpardhi/flowcanvas/internal/store/postgres"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/flowcanvas.yaml", "Path to the YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Stage catalog ────────────────────────────────────────────────────────
	cat, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		slog.Error("failed to build catalog", "err", err)
		os.Exit(1)
	}
	live := catalog.NewLive(cat)
	slog.Info("catalog loaded", "stages", cat.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Run history ──────────────────────────────────────────────────────────
	var runs store.Store = store.NewMemory()
	if cfg.Store.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := postgres.New(pool)
		if err := pg.CreateSchema(ctx); err != nil {
			slog.Error("failed to create schema", "err", err)
			os.Exit(1)
		}
		runs = pg
		slog.Info("run history in postgres")
	} else if cfg.Store.BadgerPath != "" {
		kv, err := badger.Open(cfg.Store.BadgerPath, logger)
		if err != nil {
			slog.Error("failed to open run history", "err", err)
			os.Exit(1)
		}
		defer kv.Close()
		runs = kv
		slog.Info("run history in badger", "path", cfg.Store.BadgerPath)
	} else {
		slog.Info("run history in memory")
	}

	// ── Dispatcher ───────────────────────────────────────────────────────────
	exec := executor.NewHTTP(cfg.Executor.BaseURL, millis(cfg.Executor.TimeoutMs))
	disp := engine.New(ctx, exec, cfg.Engine)
	sessions := session.NewManager(live, disp, runs)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	engineConf := cfg.Engine
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		newCat, err := catalog.FromConfig(newCfg.Catalog)
		if err != nil {
			slog.Warn("hot-reload skipped: catalog build failed", "err", err)
			return
		}
		live.Swap(newCat)
		disp.Reconfigure(
			executor.NewHTTP(newCfg.Executor.BaseURL, millis(newCfg.Executor.TimeoutMs)),
			millis(newCfg.Engine.ChainTimeoutMs),
		)
		if newCfg.Engine.ChainWorkers != engineConf.ChainWorkers || newCfg.Engine.QueueDepth != engineConf.QueueDepth {
			slog.Warn("worker pool size changes need a restart",
				"chain_workers", newCfg.Engine.ChainWorkers,
				"queue_depth", newCfg.Engine.QueueDepth,
			)
		}
		slog.Info("config hot-reloaded", "stages", newCat.Len(), "executor", newCfg.Executor.BaseURL)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(sessions, live, disp, loader),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: millis(cfg.Engine.ChainTimeoutMs) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool
	disp.Shutdown()
	slog.Info("goodbye")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
