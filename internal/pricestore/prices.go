package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one sample from a series. Price is a USD decimal, not a
// 1e6-scaled integer; conversion from on-chain fixed point happens upstream
// of the store.
type PricePoint struct {
	Ts    time.Time
	Price decimal.Decimal
}

func (s *Store) RecordPrice(ctx context.Context, assetAddress string, ts time.Time, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_prices (asset_address, ts, price)
		VALUES (?, ?, ?)
		ON CONFLICT (asset_address, ts) DO UPDATE SET
			price = excluded.price
	`, assetAddress, ts.UTC(), price)
	if err != nil {
		return fmt.Errorf("record price %s: %w", assetAddress, err)
	}
	return nil
}

func (s *Store) LatestPrice(ctx context.Context, assetAddress string) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, price
		FROM asset_prices
		WHERE asset_address = ?
		ORDER BY ts DESC
		LIMIT 1
	`, assetAddress)
	return scanPricePoint(row, assetAddress)
}

// PriceAtOrBefore returns the latest sample with ts <= bound.
func (s *Store) PriceAtOrBefore(ctx context.Context, assetAddress string, bound time.Time) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, price
		FROM asset_prices
		WHERE asset_address = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1
	`, assetAddress, bound.UTC())
	return scanPricePoint(row, assetAddress)
}

func (s *Store) OldestPrice(ctx context.Context, assetAddress string) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, price
		FROM asset_prices
		WHERE asset_address = ?
		ORDER BY ts ASC
		LIMIT 1
	`, assetAddress)
	return scanPricePoint(row, assetAddress)
}

func (s *Store) PriceRange(ctx context.Context, assetAddress string, from, to time.Time) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price
		FROM asset_prices
		WHERE asset_address = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, assetAddress, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("price range %s: %w", assetAddress, err)
	}
	defer rows.Close()
	return collectPricePoints(rows, assetAddress)
}

func (s *Store) RecordNav(ctx context.Context, basktID string, ts time.Time, nav decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt_nav_history (baskt_id, ts, nav)
		VALUES (?, ?, ?)
		ON CONFLICT (baskt_id, ts) DO UPDATE SET
			nav = excluded.nav
	`, basktID, ts.UTC(), nav)
	if err != nil {
		return fmt.Errorf("record nav %s: %w", basktID, err)
	}
	return nil
}

func (s *Store) LatestNav(ctx context.Context, basktID string) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, nav
		FROM baskt_nav_history
		WHERE baskt_id = ?
		ORDER BY ts DESC
		LIMIT 1
	`, basktID)
	return scanPricePoint(row, basktID)
}

func (s *Store) NavAtOrBefore(ctx context.Context, basktID string, bound time.Time) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, nav
		FROM baskt_nav_history
		WHERE baskt_id = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1
	`, basktID, bound.UTC())
	return scanPricePoint(row, basktID)
}

func (s *Store) OldestNav(ctx context.Context, basktID string) (PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts, nav
		FROM baskt_nav_history
		WHERE baskt_id = ?
		ORDER BY ts ASC
		LIMIT 1
	`, basktID)
	return scanPricePoint(row, basktID)
}

func (s *Store) NavRange(ctx context.Context, basktID string, from, to time.Time) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, nav
		FROM baskt_nav_history
		WHERE baskt_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, basktID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("nav range %s: %w", basktID, err)
	}
	defer rows.Close()
	return collectPricePoints(rows, basktID)
}

func scanPricePoint(row *sql.Row, key string) (PricePoint, error) {
	var point PricePoint
	err := row.Scan(&point.Ts, &point.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return PricePoint{}, fmt.Errorf("%s: %w", key, ErrNoSample)
	}
	if err != nil {
		return PricePoint{}, fmt.Errorf("scan sample %s: %w", key, err)
	}
	return point, nil
}

func collectPricePoints(rows *sql.Rows, key string) ([]PricePoint, error) {
	var points []PricePoint
	for rows.Next() {
		var point PricePoint
		if err := rows.Scan(&point.Ts, &point.Price); err != nil {
			return nil, fmt.Errorf("scan sample %s: %w", key, err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples %s: %w", key, err)
	}
	return points, nil
}
