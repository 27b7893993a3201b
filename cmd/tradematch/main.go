package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/app"
	"github.com/kailas-cloud/tradematch/internal/config"
	logpkg "github.com/kailas-cloud/tradematch/internal/logger"
	"github.com/kailas-cloud/tradematch/internal/supervisor"
	chiTransport "github.com/kailas-cloud/tradematch/internal/transport/chi"
	"github.com/kailas-cloud/tradematch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tradematch",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("catalog_driver", cfg.Catalog.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // logger flushed explicitly
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Error during close", zap.Error(err))
		}
	}()

	server := chiTransport.NewServer(
		a.Ranker, a.Bus, a.Indexer, a.Members, a.Appraisal, a.Weights, a.Budgets, a.Health,
		chiTransport.ServerConfig{
			DefaultPageSize: cfg.Ranking.DefaultPageSize,
			MaxPageSize:     cfg.Ranking.MaxPageSize,
		},
		logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, cfg.Auth.APIKeys, cfg.Auth.AdminKeys, logger),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	shutdown := time.Duration(cfg.HTTP.ShutdownSec) * time.Second
	tree := supervisor.NewTree(logger.Named("supervisor"), supervisor.TreeConfig{ShutdownTimeout: shutdown})
	a.Supervise(tree)
	tree.AddAPI(supervisor.NewHTTPService(srv, shutdown))

	logger.Info("Starting HTTP server", zap.String("addr", addr))
	return tree.Serve(ctx)
}
