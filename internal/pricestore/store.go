package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/basktfi/backend/internal/config"
)

// ErrNoSample is returned when a price or NAV query matches no rows.
var ErrNoSample = errors.New("pricestore: no sample")

type Store struct {
	db     *DB
	logger *slog.Logger
}

type DB struct {
	raw *sql.DB
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

// NewStore opens the time-series database. Connection establishment retries
// with exponential backoff up to cfg.ConnectMaxRetries attempts; queries
// after that are issued once.
func NewStore(ctx context.Context, cfg config.PriceStoreConfig, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = cfg.RetryBaseDelay
	backoffCfg.MaxInterval = cfg.RetryMaxDelay

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if attempt >= cfg.ConnectMaxRetries {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres after %d attempts: %w", attempt, err)
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = cfg.RetryMaxDelay
		}
		logger.Warn("time-series store connect failed, retrying",
			"attempt", attempt,
			"retry_in", sleep,
			"err", err,
		)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	store := &Store{db: &DB{raw: db}, logger: logger}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS asset_prices (
			asset_address TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			price NUMERIC NOT NULL,
			PRIMARY KEY (asset_address, ts)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_asset_prices_address_ts ON asset_prices(asset_address, ts DESC);`,
		`CREATE TABLE IF NOT EXISTS baskt_nav_history (
			baskt_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			nav NUMERIC NOT NULL,
			PRIMARY KEY (baskt_id, ts)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_baskt_nav_history_id_ts ON baskt_nav_history(baskt_id, ts DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// Hypertable conversion only works when the Timescale extension is
	// installed; on plain Postgres the tables stay regular and everything
	// still functions.
	hypertables := []string{
		`SELECT create_hypertable('asset_prices', 'ts', if_not_exists => TRUE, migrate_data => TRUE);`,
		`SELECT create_hypertable('baskt_nav_history', 'ts', if_not_exists => TRUE, migrate_data => TRUE);`,
	}
	for _, query := range hypertables {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			s.logger.Warn("hypertable conversion skipped", "err", err)
			break
		}
	}

	return nil
}
