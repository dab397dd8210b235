package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lumenbank/onboarding/internal/config"
	"github.com/lumenbank/onboarding/internal/housekeeping"
	"github.com/lumenbank/onboarding/internal/infra"
	"github.com/lumenbank/onboarding/internal/logging"
	"github.com/lumenbank/onboarding/internal/migrations"
	"github.com/lumenbank/onboarding/internal/routes"
	"github.com/lumenbank/onboarding/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "service", "onboarding", "env", cfg.AppEnv)

	ctx := context.Background()

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}

	if cfg.Mail.Driver == config.MailDriverAMQP {
		broker, err := infra.NewAMQPChannel(cfg.Mail.RabbitMQURL)
		if err != nil {
			logger.Error("connect rabbitmq", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := broker.Close(); err != nil {
				logger.Warn("close rabbitmq", "error", err)
			}
		}()
		deps.AMQP = broker.Channel
	}

	if cfg.S3.Enabled() {
		client, err := infra.NewS3Client(ctx, cfg.S3)
		if err != nil {
			logger.Error("build s3 client", "error", err)
			os.Exit(1)
		}
		deps.S3 = client
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Registry = registry

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	services := srv.Services()
	reaper, err := housekeeping.NewReaper(services.Pending, cfg.Signup.ReaperSchedule,
		cfg.Signup.PendingSignupRetention, services.Metrics, logger)
	if err != nil {
		logger.Error("build reaper", "error", err)
		os.Exit(1)
	}
	reaper.Start()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	reaper.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
