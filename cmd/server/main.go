package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/api"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/dedup"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/logger"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/pipeline"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/ledgerflow.yaml", "Path to YAML config")
	envFile := flag.String("env", ".env", "Optional .env file with secrets")
	addr := flag.String("addr", "", "HTTP listen address (overrides http.addr)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := loader.Config()

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	loader.SetLogger(log)

	if err := run(loader, *addr, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(loader *config.Loader, addrOverride string, log *zap.Logger) error {
	cfg := loader.Config()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Persistence and seen set ─────────────────────────────────────────────
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	seen, err := dedup.OpenSeenStore(ctx, cfg.Dedup)
	if err != nil {
		return err
	}
	defer seen.Close()

	// ── Stages and engine ────────────────────────────────────────────────────
	rates := normalize.NewRateBook(pipeline.RateTableFromConfig(cfg))
	stages, err := pipeline.StagesFromConfig(cfg, rates)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(stages, dedup.New(seen, st), st, log)
	eng := pipeline.NewEngine(ctx, orch, rates, cfg.Engine, log)
	log.Info("pipeline ready",
		zap.String("version", cfg.Version),
		zap.String("base_currency", cfg.Pipeline.BaseCurrency),
		zap.Strings("currencies", rates.Snapshot().Codes()),
		zap.String("dedup_backend", cfg.Dedup.Backend),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("workers", cfg.Engine.Workers),
	)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(c *config.Config) {
		next, err := pipeline.StagesFromConfig(c, rates)
		if err != nil {
			log.Warn("hot-reload skipped: stages could not be built", zap.Error(err))
			return
		}
		eng.SwapRates(pipeline.RateTableFromConfig(c))
		eng.SwapStages(next)
		log.Info("pipeline stages hot-reloaded", zap.String("version", c.Version))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		log.Warn("config watcher unavailable (hot-reload disabled)", zap.Error(err))
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	addr := cfg.HTTP.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(eng, st, loader, cfg.HTTP, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errC:
		return err
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// drain queued events before stopping the workers
	eng.Shutdown()
	log.Info("goodbye")
	return nil
}
