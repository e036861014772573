package pricestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WindowRefs carries the latest sample plus the nearest-before reference for
// each trailing horizon. A nil reference means the series has no sample at
// or before that bound; callers decide how to fall back.
type WindowRefs struct {
	Current *PricePoint
	Day     *PricePoint
	Week    *PricePoint
	Month   *PricePoint
	Year    *PricePoint
}

// BatchWindowPrices resolves the current price and all four window
// references for every requested asset in a single round trip. Each
// reference is the latest sample at or before the window bound, found by a
// correlated lookup per unnested address.
func (s *Store) BatchWindowPrices(ctx context.Context, assetAddresses []string, now time.Time) (map[string]WindowRefs, error) {
	if len(assetAddresses) == 0 {
		return map[string]WindowRefs{}, nil
	}

	dayBound := now.Add(-24 * time.Hour).UTC()
	weekBound := now.Add(-7 * 24 * time.Hour).UTC()
	monthBound := now.Add(-30 * 24 * time.Hour).UTC()
	yearBound := now.Add(-365 * 24 * time.Hour).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			a.asset_address,
			cur.ts, cur.price,
			d.ts, d.price,
			w.ts, w.price,
			m.ts, m.price,
			y.ts, y.price
		FROM unnest(?::text[]) AS a(asset_address)
		LEFT JOIN LATERAL (
			SELECT ts, price FROM asset_prices p
			WHERE p.asset_address = a.asset_address
			ORDER BY ts DESC LIMIT 1
		) cur ON TRUE
		LEFT JOIN LATERAL (
			SELECT ts, price FROM asset_prices p
			WHERE p.asset_address = a.asset_address AND p.ts <= ?
			ORDER BY ts DESC LIMIT 1
		) d ON TRUE
		LEFT JOIN LATERAL (
			SELECT ts, price FROM asset_prices p
			WHERE p.asset_address = a.asset_address AND p.ts <= ?
			ORDER BY ts DESC LIMIT 1
		) w ON TRUE
		LEFT JOIN LATERAL (
			SELECT ts, price FROM asset_prices p
			WHERE p.asset_address = a.asset_address AND p.ts <= ?
			ORDER BY ts DESC LIMIT 1
		) m ON TRUE
		LEFT JOIN LATERAL (
			SELECT ts, price FROM asset_prices p
			WHERE p.asset_address = a.asset_address AND p.ts <= ?
			ORDER BY ts DESC LIMIT 1
		) y ON TRUE
	`, assetAddresses, dayBound, weekBound, monthBound, yearBound)
	if err != nil {
		return nil, fmt.Errorf("batch window prices: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]WindowRefs, len(assetAddresses))
	for rows.Next() {
		var (
			address string
			cur     nullableSample
			day     nullableSample
			week    nullableSample
			month   nullableSample
			year    nullableSample
		)
		if err := rows.Scan(
			&address,
			&cur.ts, &cur.price,
			&day.ts, &day.price,
			&week.ts, &week.price,
			&month.ts, &month.price,
			&year.ts, &year.price,
		); err != nil {
			return nil, fmt.Errorf("scan batch window row: %w", err)
		}
		refs[address] = WindowRefs{
			Current: cur.point(),
			Day:     day.point(),
			Week:    week.point(),
			Month:   month.point(),
			Year:    year.point(),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch window rows: %w", err)
	}
	return refs, nil
}

type nullableSample struct {
	ts    sql.NullTime
	price decimal.NullDecimal
}

func (n nullableSample) point() *PricePoint {
	if !n.ts.Valid || !n.price.Valid {
		return nil
	}
	return &PricePoint{Ts: n.ts.Time, Price: n.price.Decimal}
}
