package querier

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/basktfi/backend/internal/metastore"
)

// APR clamp tiers. The thresholds are heuristics tuned against thin pools:
// low liquidity keeps the advertised rate conservative, and anything whose
// raw value exceeds the outlier cutoff is forced down to the base cap. These
// constants are tunable, not correctness guarantees.
var (
	aprBaseCap     = decimal.NewFromInt(10)
	aprTier1Cap    = decimal.NewFromInt(15)
	aprTier2Cap    = decimal.NewFromInt(20)
	aprTier3Cap    = decimal.NewFromInt(25)
	aprTier1Floor  = decimal.NewFromInt(100)
	aprTier2Floor  = decimal.NewFromInt(1_000)
	aprTier3Floor  = decimal.NewFromInt(10_000)
	aprOutlierKnee = decimal.NewFromInt(100)
)

// RecordFeeEvent appends one immutable fee event and returns its ID.
func (q *Querier) RecordFeeEvent(ctx context.Context, record metastore.FeeEventRecord) Response[string] {
	id, err := q.meta.InsertFeeEvent(ctx, record)
	if err != nil {
		q.logger.Error("fee event insert failed", "event_type", record.EventType, "err", err)
		return failErr[string](srcMeta, err, "failed to record fee event")
	}
	return ok(id)
}

// GetLifetimeFeeStats returns lifetime aggregates grouped by event type.
func (q *Querier) GetLifetimeFeeStats(ctx context.Context) Response[[]metastore.FeeTotalsByType] {
	totals, err := q.meta.LifetimeFeeTotals(ctx)
	if err != nil {
		q.logger.Error("lifetime fee aggregation failed", "err", err)
		return failErr[[]metastore.FeeTotalsByType](srcMeta, err, "failed to aggregate fee events")
	}
	return ok(totals)
}

// GetPoolAPR estimates the liquidity provider yield from the fee stream:
// dailyRate = feesToBlp / totalLiquidity / windowDays, annualized x365 x100,
// then clamped by the liquidity tier.
func (q *Querier) GetPoolAPR(ctx context.Context, windowDays int) Response[APRStats] {
	if windowDays <= 0 {
		windowDays = 30
	}
	now := q.now().UTC()
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	fees, err := q.meta.SumFeesToBlpSince(ctx, since)
	if err != nil {
		q.logger.Error("fee window aggregation failed", "err", err)
		return failErr[APRStats](srcMeta, err, "failed to aggregate fee events")
	}

	liquidity, err := q.totalLiquidity(ctx)
	if err != nil {
		q.logger.Error("pool liquidity lookup failed", "err", err)
		return failErr[APRStats](srcMeta, err, "failed to load pool liquidity")
	}

	stats := APRStats{
		FeesToBlp:      decimalFromScaled(fees),
		TotalLiquidity: liquidity,
		WindowDays:     windowDays,
	}
	if liquidity.IsZero() {
		return ok(stats)
	}

	days := decimal.NewFromInt(int64(windowDays))
	dailyRate := stats.FeesToBlp.Div(liquidity).Div(days)
	stats.RawAPR = dailyRate.Mul(decimal.NewFromInt(365)).Mul(hundred)
	stats.APR = clampAPR(stats.RawAPR, liquidity)
	return ok(stats)
}

// totalLiquidity prefers the persisted pool mirror and falls back to a live
// ledger read when the mirror has never been synced.
func (q *Querier) totalLiquidity(ctx context.Context) (decimal.Decimal, error) {
	poolKey, err := q.ledger.PoolAddress()
	if err != nil {
		return decimal.Zero, err
	}
	record, err := q.meta.FindPool(ctx, poolKey)
	if err == nil {
		return decimalFromScaled(record.TotalLiquidity), nil
	}
	if !errors.Is(err, metastore.ErrNotFound) {
		return decimal.Zero, err
	}
	account, err := q.ledger.Pool(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromUint64(account.TotalLiquidity).Div(usdcScaleDec), nil
}

// clampAPR applies the tiered cap. Raw rates above the outlier cutoff are
// forced back to the base cap regardless of tier; the reported number always
// favors under-reporting over a wildly fluctuating one.
func clampAPR(raw, liquidity decimal.Decimal) decimal.Decimal {
	ceiling := aprBaseCap
	switch {
	case liquidity.GreaterThanOrEqual(aprTier3Floor):
		ceiling = aprTier3Cap
	case liquidity.GreaterThanOrEqual(aprTier2Floor):
		ceiling = aprTier2Cap
	case liquidity.GreaterThanOrEqual(aprTier1Floor):
		ceiling = aprTier1Cap
	}
	if raw.GreaterThan(aprOutlierKnee) && ceiling.GreaterThan(aprBaseCap) {
		ceiling = aprBaseCap
	}
	if raw.GreaterThan(ceiling) {
		return ceiling
	}
	if raw.IsNegative() {
		return decimal.Zero
	}
	return raw
}
