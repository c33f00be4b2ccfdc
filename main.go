// Package main is the entry point for the product service API server.
// It initializes all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"productservice/src/app/server"
	"productservice/src/core/ports"
	"productservice/src/infra/config"
	"productservice/src/infra/db"
	"productservice/src/infra/db/migrations"
	"productservice/src/infra/logger"
	"productservice/src/infra/metrics"
	"productservice/src/infra/repo"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log)
	log.Info("starting application",
		"service", cfg.Server.ServiceName,
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ssl, err := db.ResolveSSL(cfg.Database.Host, cfg.Database.SSL)
	if err != nil {
		return err
	}

	if cfg.Database.Migrate {
		if err := migrate(ctx, cfg.Database, ssl, log); err != nil {
			return err
		}
	}

	var (
		opts      []db.Option
		collector *metrics.Collector
	)
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, log)
		opts = append(opts, db.WithObserver(collector))
	}

	mgr := db.New(cfg.Database, ssl, logger.WithComponent(log, "db"), opts...)
	if err := mgr.Initialize(ctx); err != nil {
		return err
	}
	defer shutdownDatabase(mgr, cfg.Database, log)

	monitor := db.NewMonitor(mgr)
	deps := server.Deps{
		Products:     repo.NewPostgresProductRepository(mgr, log),
		Database:     monitor,
		Dependencies: []ports.Dependency{monitor},
	}
	if collector != nil {
		collector.RegisterPool(cfg.Metrics.Namespace, mgr)
		deps.Metrics = collector
	}

	srv := server.New(cfg, log, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		select {
		case err := <-mgr.Unavailable():
			log.Error("database permanently unavailable, stopping", "error", err, "hint", db.Hint(err))
			return err
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

// migrate applies pending schema migrations over a dedicated connection.
func migrate(ctx context.Context, cfg config.DatabaseConfig, ssl db.SSLMode, log *slog.Logger) error {
	poolCfg, err := db.PoolConfig(cfg, ssl)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, poolCfg.ConnConfig, logger.WithComponent(log, "migrations")); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func shutdownDatabase(mgr *db.Manager, cfg config.DatabaseConfig, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("database shutdown failed", "error", err)
	}
}
