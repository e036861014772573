package querier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basktfi/backend/internal/pricestore"
)

func TestChangePercentGuardsZeroReference(t *testing.T) {
	require.True(t, changePercent(decimal.NewFromInt(120), decimal.Zero).IsZero())
	require.True(t, changePercent(decimal.NewFromInt(120), decimal.NewFromInt(100)).Equal(decimal.NewFromInt(20)))
	require.True(t, changePercent(decimal.NewFromInt(80), decimal.NewFromInt(100)).Equal(decimal.NewFromInt(-20)))
}

func TestResolveReferenceAcceptsSampleInsideTolerance(t *testing.T) {
	bound := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ref := &pricestore.PricePoint{Ts: bound.Add(-6 * time.Hour), Price: decimal.NewFromInt(110)}

	resolved, err := resolveReference(ref, bound, func() (*pricestore.PricePoint, error) {
		t.Fatal("oldest must not be consulted for an in-band reference")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, ref, resolved)
}

func TestResolveReferenceFallsBackToOldest(t *testing.T) {
	bound := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	stale := &pricestore.PricePoint{Ts: bound.Add(-48 * time.Hour), Price: decimal.NewFromInt(90)}
	oldest := &pricestore.PricePoint{Ts: bound.Add(-96 * time.Hour), Price: decimal.NewFromInt(100)}

	resolved, err := resolveReference(stale, bound, func() (*pricestore.PricePoint, error) {
		return oldest, nil
	})
	require.NoError(t, err)
	require.Equal(t, oldest, resolved)
}

func TestResolveReferenceKeepsStaleSampleWhenNoOldest(t *testing.T) {
	bound := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	stale := &pricestore.PricePoint{Ts: bound.Add(-48 * time.Hour), Price: decimal.NewFromInt(90)}

	resolved, err := resolveReference(stale, bound, func() (*pricestore.PricePoint, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, stale, resolved)
}

// A series sampled on day 0 and day 10 has no sample near the 7-day bound.
// Every window outside the tolerance band must fall back to the day-0 sample
// and report the same deterministic change since inception.
func TestAssetPerformanceSparseSeriesUsesOldestFallback(t *testing.T) {
	env := newTestEnv()
	address := pubkey(0xA1).String()
	env.prices.addSample(address, env.now.AddDate(0, 0, -10), "100")
	env.prices.addSample(address, env.now, "120")

	resp := env.q.GetAssetPerformance(context.Background(), address)
	require.True(t, resp.Success)
	expected := decimal.NewFromInt(20)
	require.True(t, resp.Data.Day.Equal(expected), "24h window: %s", resp.Data.Day)
	require.True(t, resp.Data.Week.Equal(expected), "7d window: %s", resp.Data.Week)
	require.True(t, resp.Data.Month.Equal(expected), "30d window: %s", resp.Data.Month)
	require.True(t, resp.Data.Year.Equal(expected), "365d window: %s", resp.Data.Year)
}

func TestAssetPerformancePrefersInBandReference(t *testing.T) {
	env := newTestEnv()
	address := pubkey(0xA2).String()
	env.prices.addSample(address, env.now.AddDate(0, 0, -10), "100")
	env.prices.addSample(address, env.now.Add(-25*time.Hour), "110")
	env.prices.addSample(address, env.now, "121")

	resp := env.q.GetAssetPerformance(context.Background(), address)
	require.True(t, resp.Success)
	// The 25h-old sample sits inside the one-day tolerance below the 24h
	// bound, so the day window measures against 110, not the day-0 sample.
	require.True(t, resp.Data.Day.Equal(decimal.NewFromInt(10)), "24h window: %s", resp.Data.Day)
	require.True(t, resp.Data.Week.Equal(decimal.NewFromInt(21)), "7d window: %s", resp.Data.Week)
}

func TestAssetPerformanceEmptySeriesIsNotFound(t *testing.T) {
	env := newTestEnv()

	resp := env.q.GetAssetPerformance(context.Background(), pubkey(0xA3).String())
	require.False(t, resp.Success)
	require.Equal(t, CodeNotFound, resp.Error)
	require.Equal(t, 404, resp.StatusCode)
}

func TestBatchPerformanceOmitsPricelessAssets(t *testing.T) {
	env := newTestEnv()
	priced := pubkey(0xA4).String()
	priceless := pubkey(0xA5).String()
	env.prices.addSample(priced, env.now.Add(-time.Hour), "50")

	resp := env.q.GetBatchPerformance(context.Background(), []string{priced, priceless})
	require.True(t, resp.Success)
	require.Contains(t, resp.Data, priced)
	require.NotContains(t, resp.Data, priceless)
}
