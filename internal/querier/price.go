package querier

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/basktfi/backend/internal/pricestore"
)

// referenceTolerance bounds how stale a windowed reference sample may be
// before the series falls back to its oldest sample. A reference is accepted
// when it lies within one day below the window bound.
const referenceTolerance = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// changePercent is the guarded change formula: a zero or absent reference
// reports 0 instead of dividing by zero.
func changePercent(current, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return current.Sub(reference).Div(reference).Mul(hundred)
}

// resolveReference applies the windowing rule: take the nearest-before
// sample when it sits inside the tolerance band, otherwise fall back to the
// series' oldest sample so young series report performance since inception.
// oldest is resolved lazily and may legitimately find nothing.
func resolveReference(ref *pricestore.PricePoint, bound time.Time, oldest func() (*pricestore.PricePoint, error)) (*pricestore.PricePoint, error) {
	if ref != nil && !ref.Ts.Before(bound.Add(-referenceTolerance)) {
		return ref, nil
	}
	fallback, err := oldest()
	if err != nil {
		return nil, err
	}
	if fallback != nil {
		return fallback, nil
	}
	return ref, nil
}

// windowChange combines resolution and the change formula for one horizon.
func windowChange(current decimal.Decimal, ref *pricestore.PricePoint, bound time.Time, oldest func() (*pricestore.PricePoint, error)) (decimal.Decimal, error) {
	resolved, err := resolveReference(ref, bound, oldest)
	if err != nil {
		return decimal.Zero, err
	}
	if resolved == nil {
		return decimal.Zero, nil
	}
	return changePercent(current, resolved.Price), nil
}

// performanceFromRefs turns a WindowRefs row into the four-horizon window
// map. The oldest sample is fetched at most once per series, lazily.
func (q *Querier) performanceFromRefs(
	ctx context.Context,
	refs pricestore.WindowRefs,
	now time.Time,
	oldestFn func(ctx context.Context, key string) (pricestore.PricePoint, error),
	key string,
) (PerformanceWindows, error) {
	if refs.Current == nil {
		return PerformanceWindows{}, nil
	}
	current := refs.Current.Price

	var (
		oldestOnce    bool
		oldestSample  *pricestore.PricePoint
		oldestFailure error
	)
	oldest := func() (*pricestore.PricePoint, error) {
		if !oldestOnce {
			oldestOnce = true
			sample, err := oldestFn(ctx, key)
			switch {
			case err == nil:
				oldestSample = &sample
			case errors.Is(err, pricestore.ErrNoSample):
			default:
				oldestFailure = err
			}
		}
		return oldestSample, oldestFailure
	}

	var out PerformanceWindows
	var err error
	if out.Day, err = windowChange(current, refs.Day, now.Add(-24*time.Hour), oldest); err != nil {
		return PerformanceWindows{}, err
	}
	if out.Week, err = windowChange(current, refs.Week, now.Add(-7*24*time.Hour), oldest); err != nil {
		return PerformanceWindows{}, err
	}
	if out.Month, err = windowChange(current, refs.Month, now.Add(-30*24*time.Hour), oldest); err != nil {
		return PerformanceWindows{}, err
	}
	if out.Year, err = windowChange(current, refs.Year, now.Add(-365*24*time.Hour), oldest); err != nil {
		return PerformanceWindows{}, err
	}
	return out, nil
}

// GetLatestPrice returns the most recent sample for an asset.
func (q *Querier) GetLatestPrice(ctx context.Context, assetAddress string) Response[pricestore.PricePoint] {
	point, err := q.prices.LatestPrice(ctx, assetAddress)
	if err != nil {
		q.logger.Warn("latest price lookup failed", "asset", assetAddress, "err", err)
		return failErr[pricestore.PricePoint](srcPrices, err, "no price for asset")
	}
	return ok(point)
}

// GetPriceRange returns samples inside [from, to] in ascending order.
func (q *Querier) GetPriceRange(ctx context.Context, assetAddress string, from, to time.Time) Response[[]pricestore.PricePoint] {
	points, err := q.prices.PriceRange(ctx, assetAddress, from, to)
	if err != nil {
		q.logger.Warn("price range lookup failed", "asset", assetAddress, "err", err)
		return failErr[[]pricestore.PricePoint](srcPrices, err, "failed to load price range")
	}
	return ok(points)
}

// GetAssetPerformance computes the four trailing windows for one asset.
func (q *Querier) GetAssetPerformance(ctx context.Context, assetAddress string) Response[PerformanceWindows] {
	now := q.now().UTC()
	batch, err := q.prices.BatchWindowPrices(ctx, []string{assetAddress}, now)
	if err != nil {
		q.logger.Warn("asset performance query failed", "asset", assetAddress, "err", err)
		return failErr[PerformanceWindows](srcPrices, err, "failed to load performance")
	}
	refs, found := batch[assetAddress]
	if !found || refs.Current == nil {
		return notFound[PerformanceWindows]("no price history for asset")
	}
	windows, err := q.performanceFromRefs(ctx, refs, now, q.oldestPrice, assetAddress)
	if err != nil {
		q.logger.Warn("asset performance fallback failed", "asset", assetAddress, "err", err)
		return failErr[PerformanceWindows](srcPrices, err, "failed to load performance")
	}
	return ok(windows)
}

// GetBatchPerformance computes windows for many assets in one query. Assets
// without a current price are omitted rather than failing the batch.
func (q *Querier) GetBatchPerformance(ctx context.Context, assetAddresses []string) Response[map[string]PerformanceWindows] {
	now := q.now().UTC()
	batch, err := q.prices.BatchWindowPrices(ctx, assetAddresses, now)
	if err != nil {
		q.logger.Warn("batch performance query failed", "assets", len(assetAddresses), "err", err)
		return failErr[map[string]PerformanceWindows](srcPrices, err, "failed to load performance")
	}

	out := make(map[string]PerformanceWindows, len(batch))
	for address, refs := range batch {
		if refs.Current == nil {
			continue
		}
		windows, err := q.performanceFromRefs(ctx, refs, now, q.oldestPrice, address)
		if err != nil {
			q.logger.Warn("batch performance fallback failed", "asset", address, "err", err)
			continue
		}
		out[address] = windows
	}
	return ok(out)
}

func (q *Querier) oldestPrice(ctx context.Context, assetAddress string) (pricestore.PricePoint, error) {
	return q.prices.OldestPrice(ctx, assetAddress)
}

func (q *Querier) oldestNav(ctx context.Context, basktID string) (pricestore.PricePoint, error) {
	return q.prices.OldestNav(ctx, basktID)
}

// navWindowRefs assembles WindowRefs for a baskt's NAV series using the
// point queries; NAV series are per-baskt so there is no batch variant.
func (q *Querier) navWindowRefs(ctx context.Context, basktID string, now time.Time) (pricestore.WindowRefs, error) {
	var refs pricestore.WindowRefs

	latest, err := q.prices.LatestNav(ctx, basktID)
	switch {
	case err == nil:
		refs.Current = &latest
	case errors.Is(err, pricestore.ErrNoSample):
		return refs, nil
	default:
		return refs, err
	}

	bounds := []struct {
		offset time.Duration
		target **pricestore.PricePoint
	}{
		{24 * time.Hour, &refs.Day},
		{7 * 24 * time.Hour, &refs.Week},
		{30 * 24 * time.Hour, &refs.Month},
		{365 * 24 * time.Hour, &refs.Year},
	}
	for _, b := range bounds {
		sample, err := q.prices.NavAtOrBefore(ctx, basktID, now.Add(-b.offset))
		switch {
		case err == nil:
			point := sample
			*b.target = &point
		case errors.Is(err, pricestore.ErrNoSample):
		default:
			return refs, err
		}
	}
	return refs, nil
}
