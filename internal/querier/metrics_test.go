package querier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basktfi/backend/internal/metastore"
)

func TestGetOpenInterestCountsOnlyOpenPositions(t *testing.T) {
	env := newTestEnv()
	baskt := pubkey(0x71).String()
	env.meta.positions["p1"] = metastore.PositionRecord{
		PositionPDA:   "p1",
		BasktID:       baskt,
		Status:        PositionOpen,
		EntryPrice:    big6(10),
		RemainingSize: big6(100),
	}
	env.meta.positions["p2"] = metastore.PositionRecord{
		PositionPDA:   "p2",
		BasktID:       baskt,
		Status:        PositionOpen,
		EntryPrice:    big6(5),
		RemainingSize: big6(40),
	}
	env.meta.positions["p3"] = metastore.PositionRecord{
		PositionPDA:   "p3",
		BasktID:       baskt,
		Status:        PositionClosed,
		EntryPrice:    big6(10),
		RemainingSize: big6(0),
	}

	resp := env.q.GetOpenInterest(context.Background(), baskt)
	require.True(t, resp.Success)
	// 100 x 10 + 40 x 5 = 1200
	require.True(t, resp.Data.OpenInterest.Equal(decimal.NewFromInt(1200)), "oi: %s", resp.Data.OpenInterest)
	require.Equal(t, 2, resp.Data.PositionCount)
}

func TestGetOpenInterestEmptyBasktIDAggregatesGlobally(t *testing.T) {
	env := newTestEnv()
	env.meta.positions["p1"] = metastore.PositionRecord{
		PositionPDA: "p1", BasktID: "a", Status: PositionOpen, EntryPrice: big6(2), RemainingSize: big6(10),
	}
	env.meta.positions["p2"] = metastore.PositionRecord{
		PositionPDA: "p2", BasktID: "b", Status: PositionOpen, EntryPrice: big6(3), RemainingSize: big6(10),
	}

	resp := env.q.GetOpenInterest(context.Background(), "")
	require.True(t, resp.Success)
	require.True(t, resp.Data.OpenInterest.Equal(decimal.NewFromInt(50)), "oi: %s", resp.Data.OpenInterest)
}

func TestGetVolumeWindowsOnOpenedAt(t *testing.T) {
	env := newTestEnv()
	baskt := pubkey(0x72).String()
	env.meta.positions["p1"] = metastore.PositionRecord{
		PositionPDA: "p1", BasktID: baskt,
		UsdcSize: big6(500),
		OpenedAt: env.now.Add(-2 * time.Hour),
	}
	env.meta.positions["p2"] = metastore.PositionRecord{
		PositionPDA: "p2", BasktID: baskt,
		// No persisted notional; derived from size x entry.
		Size:       big6(100),
		EntryPrice: big6(3),
		OpenedAt:   env.now.Add(-time.Hour),
	}
	env.meta.positions["p3"] = metastore.PositionRecord{
		PositionPDA: "p3", BasktID: baskt,
		UsdcSize: big6(999),
		OpenedAt: env.now.Add(-48 * time.Hour),
	}

	resp := env.q.GetVolume(context.Background(), baskt, env.now.Add(-24*time.Hour), time.Time{})
	require.True(t, resp.Success)
	// 500 persisted + 300 derived; the 48h-old position is outside the window.
	require.True(t, resp.Data.Volume.Equal(decimal.NewFromInt(800)), "volume: %s", resp.Data.Volume)
	require.Equal(t, 2, resp.Data.PositionCount)
	require.Equal(t, env.now, resp.Data.To)
}
