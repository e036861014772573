package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/basktfi/backend/internal/config"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("metastore: not found")

const (
	collectionAssets       = "assets"
	collectionBaskts       = "baskts"
	collectionOrders       = "orders"
	collectionPositions    = "positions"
	collectionFeeEvents    = "fee_events"
	collectionPool         = "pool"
	collectionPoolActivity = "pool_activity"
	collectionWithdrawals  = "withdrawal_requests"
	collectionWallets      = "wallets"
	collectionAccessCodes  = "access_codes"
)

// Store owns the metadata database handle. One instance per process,
// shared by every querier.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewStore connects to the metadata store. Connection establishment retries
// with exponential backoff up to cfg.ConnectMaxRetries attempts; queries
// after that never retry.
func NewStore(ctx context.Context, cfg config.MetaStoreConfig, logger *slog.Logger) (*Store, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = cfg.RetryBaseDelay
	backoffCfg.MaxInterval = cfg.RetryMaxDelay

	var client *mongo.Client
	for attempt := 1; ; attempt++ {
		var err error
		client, err = connect(ctx, cfg)
		if err == nil {
			break
		}
		if attempt >= cfg.ConnectMaxRetries {
			return nil, fmt.Errorf("connect metadata store after %d attempts: %w", attempt, err)
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = cfg.RetryMaxDelay
		}
		logger.Warn("metadata store connect failed, retrying",
			"attempt", attempt,
			"retry_in", sleep,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

func connect(ctx context.Context, cfg config.MetaStoreConfig) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URI, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w", cfg.URI, err)
	}
	return client, nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect metadata store: %w", err)
	}
	return nil
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// mapFindErr turns the driver's no-documents sentinel into ErrNotFound and
// wraps everything else with the collection name.
func mapFindErr(err error, collection, key string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %q: %w", collection, key, ErrNotFound)
	}
	return fmt.Errorf("find %s %q: %w", collection, key, err)
}
