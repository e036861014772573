package querier

import (
	"context"
	"math/big"
	"time"

	"github.com/basktfi/backend/internal/metastore"
)

// GetOpenInterest sums the remaining notional of OPEN positions:
// remainingSize x entryPrice / 1e6 per position. An empty basktID
// aggregates across every baskt.
func (q *Querier) GetOpenInterest(ctx context.Context, basktID string) Response[OpenInterestStats] {
	positions, err := q.loadPositions(ctx, basktID)
	if err != nil {
		q.logger.Error("open interest listing failed", "baskt", basktID, "err", err)
		return failErr[OpenInterestStats](srcMeta, err, "failed to list positions")
	}

	total := new(big.Int)
	count := 0
	for _, position := range positions {
		if position.Status != PositionOpen {
			continue
		}
		notional := new(big.Int).Mul(bigOrZero(position.RemainingSize), bigOrZero(position.EntryPrice))
		notional.Quo(notional, usdcScale)
		total.Add(total, notional)
		count++
	}
	return ok(OpenInterestStats{
		OpenInterest:  decimalFromScaled(total),
		PositionCount: count,
	})
}

// GetVolume sums the notional of positions opened inside [from, to]. An
// empty basktID aggregates globally.
func (q *Querier) GetVolume(ctx context.Context, basktID string, from, to time.Time) Response[VolumeStats] {
	if to.IsZero() {
		to = q.now().UTC()
	}
	positions, err := q.loadPositions(ctx, basktID)
	if err != nil {
		q.logger.Error("volume listing failed", "baskt", basktID, "err", err)
		return failErr[VolumeStats](srcMeta, err, "failed to list positions")
	}

	total := new(big.Int)
	count := 0
	for _, position := range positions {
		if position.OpenedAt.Before(from) || position.OpenedAt.After(to) {
			continue
		}
		usdc := bigOrZero(position.UsdcSize)
		if usdc.Sign() == 0 {
			usdc = deriveUsdcSize(usdc, bigOrZero(position.Size), bigOrZero(position.EntryPrice))
		}
		total.Add(total, usdc)
		count++
	}
	return ok(VolumeStats{
		Volume:        decimalFromScaled(total),
		PositionCount: count,
		From:          from,
		To:            to,
	})
}

func (q *Querier) loadPositions(ctx context.Context, basktID string) ([]metastore.PositionRecord, error) {
	if basktID == "" {
		return q.meta.ListPositions(ctx)
	}
	return q.meta.ListPositionsByBaskt(ctx, basktID)
}
