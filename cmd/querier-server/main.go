package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/basktfi/backend/internal/apiserver"
	"github.com/basktfi/backend/internal/config"
	"github.com/basktfi/backend/internal/logging"
	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
	"github.com/basktfi/backend/internal/querier"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadQuerierServerConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("querier-server", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := metastore.NewStore(ctx, cfg.Meta, logger)
	if err != nil {
		logger.Error("failed to connect metadata store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := meta.Close(context.Background()); closeErr != nil {
			logger.Error("failed to close metadata store", "err", closeErr)
		}
	}()

	prices, err := pricestore.NewStore(ctx, cfg.Prices, logger)
	if err != nil {
		logger.Error("failed to connect price store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := prices.Close(); closeErr != nil {
			logger.Error("failed to close price store", "err", closeErr)
		}
	}()

	ledger := onchain.NewClient(cfg.Ledger, logger)

	q := querier.New(meta, prices, ledger, logger)
	svc := apiserver.New(cfg, logger, q)

	if err := svc.Run(ctx); err != nil {
		logger.Error("querier-server exited with error", "err", err)
		os.Exit(1)
	}
}
