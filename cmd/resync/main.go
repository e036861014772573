package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/basktfi/backend/internal/config"
	"github.com/basktfi/backend/internal/logging"
	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
	"github.com/basktfi/backend/internal/querier"
	_ "github.com/joho/godotenv/autoload"
)

// resync is a one-shot reconciliation pass: pool mirror, withdrawal queue and
// every baskt the ledger knows about. Intended for cron or manual runs after
// an outage.
func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadResyncConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("resync", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

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

	failed := false

	if resp := q.ResyncPool(ctx); !resp.Success {
		logger.Error("pool resync failed", "error", resp.Error, "message", resp.Message)
		failed = true
	} else {
		logger.Info("pool resynced",
			"total_liquidity", resp.Data.TotalLiquidity.String(),
			"queue_tail", resp.Data.QueueTail,
			"queue_head", resp.Data.QueueHead,
		)
	}

	if resp := q.ReconcileQueue(ctx); !resp.Success {
		logger.Error("withdrawal queue reconcile failed", "error", resp.Error, "message", resp.Message)
		failed = true
	} else {
		logger.Info("withdrawal queue reconciled", "requests", len(resp.Data))
	}

	baskts, err := ledger.Baskts(ctx)
	if err != nil {
		logger.Error("baskt scan failed", "err", err)
		os.Exit(1)
	}
	for _, item := range baskts {
		basktID := item.Pubkey.String()
		if resp := q.ResyncBaskt(ctx, basktID); !resp.Success {
			logger.Error("baskt resync failed", "baskt", basktID, "error", resp.Error, "message", resp.Message)
			failed = true
			continue
		}
		logger.Info("baskt resynced", "baskt", basktID)
	}

	if failed {
		os.Exit(1)
	}
	logger.Info("resync completed", "baskts", len(baskts))
}
