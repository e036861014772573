package querier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
)

func TestComputeNav(t *testing.T) {
	baseline := decimal.NewFromInt(100)

	// One long at 60% up 10%, one short at 40% down 5% (short gains).
	assets := []BasktAssetView{
		{
			CombinedAsset: CombinedAsset{Price: decimal.RequireFromString("1.10")},
			IsLong:        true,
			WeightBps:     6_000,
			BaselinePrice: decimal.NewFromInt(1),
		},
		{
			CombinedAsset: CombinedAsset{Price: decimal.RequireFromString("0.95")},
			IsLong:        false,
			WeightBps:     4_000,
			BaselinePrice: decimal.NewFromInt(1),
		},
	}
	// 100 x (0.6 x 1.10 + 0.4 x (2 - 0.95)) = 100 x (0.66 + 0.42) = 108
	nav := computeNav(baseline, assets)
	require.True(t, nav.Equal(decimal.NewFromInt(108)), "nav: %s", nav)

	// Allocations without a baseline price contribute nothing.
	assets[1].BaselinePrice = decimal.Zero
	nav = computeNav(baseline, assets)
	require.True(t, nav.Equal(decimal.NewFromInt(66)), "nav: %s", nav)

	require.True(t, computeNav(decimal.Zero, assets).IsZero())
}

func basktAccount(status onchain.BasktStatus, assets ...onchain.BasktAssetConfig) *onchain.BasktAccount {
	return &onchain.BasktAccount{
		Creator:       pubkey(0x61),
		Status:        status,
		BaselineNav:   100_000_000,
		CurrentAssets: assets,
	}
}

func TestGetBasktByIDLedgerAllocationsWin(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xE1).String()
	assetA := pubkey(0xE2)
	assetB := pubkey(0xE3)
	env.ledger.baskts[basktID] = basktAccount(onchain.BasktStatus_Active,
		onchain.BasktAssetConfig{AssetAddress: assetA, IsLong: true, WeightBps: 7_000, BaselinePrice: 1_000_000},
		onchain.BasktAssetConfig{AssetAddress: assetB, IsLong: false, WeightBps: 3_000, BaselinePrice: 2_000_000},
	)
	env.meta.baskts[basktID] = metastore.BasktRecord{
		BasktID:     basktID,
		Name:        "Solana Majors",
		Description: "Large caps",
		Status:      "Pending",
		// Stale allocation set that the ledger has since replaced.
		Allocations: []metastore.BasktAllocationRecord{{AssetAddress: pubkey(0xE4).String(), WeightBps: 10_000}},
	}
	env.prices.addSample(assetA.String(), env.now, "1.10")
	env.prices.addSample(assetB.String(), env.now, "1.90")

	resp := env.q.GetBasktByID(context.Background(), basktID)
	require.True(t, resp.Success)
	require.Equal(t, "Solana Majors", resp.Data.Name)
	require.Equal(t, "Active", resp.Data.Status)
	require.Len(t, resp.Data.Assets, 2)
	require.True(t, resp.Data.Assets[0].Weight.Equal(decimal.NewFromInt(70)))
	// 100 x (0.7 x 1.10 + 0.3 x (2 - 0.95)) = 100 x (0.77 + 0.315) = 108.5
	require.True(t, resp.Data.Nav.Equal(decimal.RequireFromString("108.5")), "nav: %s", resp.Data.Nav)
}

func TestGetBasktByIDSkipsPricelessAllocations(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xE5).String()
	priced := pubkey(0xE6)
	priceless := pubkey(0xE7)
	env.ledger.baskts[basktID] = basktAccount(onchain.BasktStatus_Active,
		onchain.BasktAssetConfig{AssetAddress: priced, IsLong: true, WeightBps: 5_000, BaselinePrice: 1_000_000},
		onchain.BasktAssetConfig{AssetAddress: priceless, IsLong: true, WeightBps: 5_000, BaselinePrice: 1_000_000},
	)
	env.prices.addSample(priced.String(), env.now, "1.00")

	resp := env.q.GetBasktByID(context.Background(), basktID)
	require.True(t, resp.Success)
	require.Len(t, resp.Data.Assets, 1)
	require.Equal(t, priced.String(), resp.Data.Assets[0].Address)
}

func TestGetBasktByIDPrefersNavHistory(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xE8).String()
	env.ledger.baskts[basktID] = basktAccount(onchain.BasktStatus_Active)
	env.prices.addNav(basktID, env.now.Add(-time.Hour), "123.45")

	resp := env.q.GetBasktByID(context.Background(), basktID)
	require.True(t, resp.Success)
	require.True(t, resp.Data.Nav.Equal(decimal.RequireFromString("123.45")), "nav: %s", resp.Data.Nav)
}

func TestGetBasktByIDUnknownIsNotFound(t *testing.T) {
	env := newTestEnv()

	resp := env.q.GetBasktByID(context.Background(), pubkey(0xE9).String())
	require.False(t, resp.Success)
	require.Equal(t, CodeNotFound, resp.Error)
	require.Equal(t, 404, resp.StatusCode)
}

func TestResyncBasktPersistsSnapshotAndNav(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xEA).String()
	asset := pubkey(0xEB)
	env.ledger.baskts[basktID] = basktAccount(onchain.BasktStatus_Active,
		onchain.BasktAssetConfig{AssetAddress: asset, IsLong: true, WeightBps: 10_000, BaselinePrice: 1_000_000},
	)
	env.meta.baskts[basktID] = metastore.BasktRecord{BasktID: basktID, Name: "Keeper Baskt"}
	env.prices.addSample(asset.String(), env.now, "1.25")

	resp := env.q.ResyncBaskt(context.Background(), basktID)
	require.True(t, resp.Success)
	// 100 x 1.0 x 1.25
	require.True(t, resp.Data.Nav.Equal(decimal.NewFromInt(125)), "nav: %s", resp.Data.Nav)

	stored := env.meta.baskts[basktID]
	require.Equal(t, "Keeper Baskt", stored.Name)
	require.Equal(t, "Active", stored.Status)
	require.Len(t, stored.Allocations, 1)
	require.Equal(t, env.now, stored.SyncedAt)

	// NAV lands in the history series.
	require.Len(t, env.prices.navSink[basktID], 1)
	require.True(t, env.prices.navSink[basktID][0].Price.Equal(decimal.NewFromInt(125)))
}

func TestBasktPerformanceWithoutHistoryIsZero(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xEC).String()
	env.ledger.baskts[basktID] = basktAccount(onchain.BasktStatus_Active)

	resp := env.q.GetBasktPerformance(context.Background(), basktID)
	require.True(t, resp.Success)
	require.True(t, resp.Data.Day.IsZero())
	require.True(t, resp.Data.Year.IsZero())
}

func TestGetBasktPerformanceWindowsNavSeries(t *testing.T) {
	env := newTestEnv()
	basktID := pubkey(0xED).String()
	env.prices.addNav(basktID, env.now.Add(-30*time.Hour), "100")
	env.prices.addNav(basktID, env.now, "110")

	resp := env.q.GetBasktPerformance(context.Background(), basktID)
	require.True(t, resp.Success)
	require.True(t, resp.Data.Day.Equal(decimal.NewFromInt(10)), "24h: %s", resp.Data.Day)
}
