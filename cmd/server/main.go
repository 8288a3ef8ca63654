package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	httpapi "bgv/internal/http"
	"bgv/internal/platform/config"
	"bgv/internal/platform/httpserver"
	"bgv/internal/platform/logger"
	"bgv/internal/platform/metrics"
)

var version = "dev"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bgv: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procMetrics := metrics.New()
	procMetrics.SetBuildInfo(version)

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(cfg, infra, log, procMetrics)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Verification: app.verificationHandler,
		Tenants:      app.tenantHandler,
		Validator:    app.validator,
		RateLimiter:  app.rateLimiter,
		AdminToken:   cfg.Server.AdminToken,
		Logger:       log,
		Readiness:    infra.readiness(),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting bgv",
		"version", version,
		"addr", cfg.Server.Addr,
		"postgres", infra.db != nil,
		"redis", infra.redis != nil,
		"kafka", infra.kafka != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if app.hashWorker != nil {
		g.Go(func() error { return ignoreCanceled(app.hashWorker.Run(gctx)) })
	}
	if app.scheduler != nil {
		g.Go(func() error { return ignoreCanceled(app.scheduler.Run(gctx)) })
	}

	if err := g.Wait(); err != nil {
		log.Error("bgv stopped with error", "error", err)
		return err
	}
	log.Info("bgv stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
