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

func ledgerAsset(tag byte, ticker string) onchain.KeyedAsset {
	account := &onchain.AssetAccount{
		Authority:   pubkey(0x01),
		PriceOracle: pubkey(0x02),
		MaxLeverage: 10,
		IsActive:    true,
	}
	copy(account.Ticker[:], ticker)
	return onchain.KeyedAsset{Pubkey: pubkey(tag), Account: account}
}

func TestGetAssetByAddressMergesAllThreeSources(t *testing.T) {
	env := newTestEnv()
	item := ledgerAsset(0xB1, "DOGE")
	address := item.Pubkey.String()
	env.ledger.assets = append(env.ledger.assets, item)
	env.meta.assets[address] = metastore.AssetRecord{
		Address: address,
		Ticker:  "DOGE",
		Name:    "Dogcoin",
		LogoURL: "https://cdn.example/doge.png",
	}
	env.meta.baskts["meme-baskt"] = metastore.BasktRecord{
		BasktID:     "meme-baskt",
		Allocations: []metastore.BasktAllocationRecord{{AssetAddress: address, WeightBps: 10_000}},
	}
	env.prices.addSample(address, env.now.Add(-30*time.Hour), "0.20")
	env.prices.addSample(address, env.now, "0.25")

	resp := env.q.GetAssetByAddress(context.Background(), address)
	require.True(t, resp.Success)
	require.Equal(t, "DOGE", resp.Data.Ticker)
	require.Equal(t, "Dogcoin", resp.Data.Name)
	require.True(t, resp.Data.Price.Equal(decimal.RequireFromString("0.25")))
	require.True(t, resp.Data.Change24h.Equal(decimal.NewFromInt(25)), "change24h: %s", resp.Data.Change24h)
	require.NotNil(t, resp.Data.Ledger)
	require.True(t, resp.Data.Ledger.IsActive)
	require.Equal(t, uint64(10), resp.Data.Ledger.MaxLeverage)
	require.Equal(t, []string{"meme-baskt"}, resp.Data.BasktIDs)
}

func TestGetAssetByAddressWithoutPriceFails(t *testing.T) {
	env := newTestEnv()
	item := ledgerAsset(0xB2, "PEPE")
	env.ledger.assets = append(env.ledger.assets, item)

	resp := env.q.GetAssetByAddress(context.Background(), item.Pubkey.String())
	require.False(t, resp.Success)
	require.Equal(t, CodeNotFound, resp.Error)
	require.Equal(t, 404, resp.StatusCode)
}

func TestGetAssetByAddressUnknownEverywhereIsNotFound(t *testing.T) {
	env := newTestEnv()

	resp := env.q.GetAssetByAddress(context.Background(), pubkey(0xB3).String())
	require.False(t, resp.Success)
	require.Equal(t, CodeNotFound, resp.Error)
}

func TestGetAssetByAddressLedgerOnlyUsesAccountTicker(t *testing.T) {
	env := newTestEnv()
	item := ledgerAsset(0xB4, "WIF")
	address := item.Pubkey.String()
	env.ledger.assets = append(env.ledger.assets, item)
	env.prices.addSample(address, env.now, "1.50")

	resp := env.q.GetAssetByAddress(context.Background(), address)
	require.True(t, resp.Success)
	require.Equal(t, "WIF", resp.Data.Ticker)
	require.Empty(t, resp.Data.Name)
}

func TestGetAssetByTickerFallsBackToLedgerScan(t *testing.T) {
	env := newTestEnv()
	item := ledgerAsset(0xB5, "BONK")
	env.ledger.assets = append(env.ledger.assets, item)
	env.prices.addSample(item.Pubkey.String(), env.now, "0.00003")

	resp := env.q.GetAssetByTicker(context.Background(), "BONK")
	require.True(t, resp.Success)
	require.Equal(t, item.Pubkey.String(), resp.Data.Address)
}

func TestGetAllAssetsExcludesPricelessAssets(t *testing.T) {
	env := newTestEnv()
	priced := ledgerAsset(0xB6, "SOL")
	priceless := ledgerAsset(0xB7, "DUST")
	env.ledger.assets = append(env.ledger.assets, priced, priceless)
	env.meta.assets[priced.Pubkey.String()] = metastore.AssetRecord{Address: priced.Pubkey.String(), Ticker: "SOL"}
	env.prices.addSample(priced.Pubkey.String(), env.now, "150")

	resp := env.q.GetAllAssets(context.Background())
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	require.Equal(t, priced.Pubkey.String(), resp.Data[0].Address)
}

func TestGetAllAssetsUnionsMetadataAndLedger(t *testing.T) {
	env := newTestEnv()
	onLedger := ledgerAsset(0xB8, "JUP")
	metaOnly := pubkey(0xB9).String()
	env.ledger.assets = append(env.ledger.assets, onLedger)
	env.meta.assets[metaOnly] = metastore.AssetRecord{Address: metaOnly, Ticker: "RAY", Name: "Raydium"}
	env.prices.addSample(onLedger.Pubkey.String(), env.now, "0.90")
	env.prices.addSample(metaOnly, env.now, "3.10")

	resp := env.q.GetAllAssets(context.Background())
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 2)

	byTicker := make(map[string]CombinedAsset, len(resp.Data))
	for _, asset := range resp.Data {
		byTicker[asset.Ticker] = asset
	}
	require.NotNil(t, byTicker["JUP"].Ledger)
	require.Nil(t, byTicker["RAY"].Ledger)
}
