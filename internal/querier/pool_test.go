package querier

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
)

func TestGetPoolResyncsWhenMirrorIsCold(t *testing.T) {
	env := newTestEnv()
	env.ledger.pool = &onchain.LiquidityPoolAccount{
		Authority:      pubkey(0x41),
		LpMint:         pubkey(0x42),
		TotalLiquidity: 5_000_000_000,
		TotalShares:    4_000_000_000,
		FeeBps:         30,
	}

	resp := env.q.GetPool(context.Background())
	require.True(t, resp.Success)
	require.True(t, resp.Data.TotalLiquidity.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, uint64(30), resp.Data.FeeBps)
	require.Equal(t, env.now, resp.Data.SyncedAt)

	// The mirror is now warm; subsequent reads serve it directly.
	require.Contains(t, env.meta.pools, env.ledger.poolKey)
	env.ledger.pool = nil
	again := env.q.GetPool(context.Background())
	require.True(t, again.Success)
	require.True(t, again.Data.TotalLiquidity.Equal(decimal.NewFromInt(5000)))
}

func TestRecordDepositBooksActivityAndFeeEvent(t *testing.T) {
	env := newTestEnv()
	provider := pubkey(0x43).String()

	resp := env.q.RecordDeposit(context.Background(), provider, big6(1000), big6(900), big6(1), big6(2), "tx-dep")
	require.True(t, resp.Success)
	require.Equal(t, metastore.PoolActivityDeposit, resp.Data.Kind)
	require.Equal(t, env.now, resp.Data.Timestamp)

	require.Len(t, env.meta.feeEvents, 1)
	event := env.meta.feeEvents[0]
	require.Equal(t, metastore.FeeEventLiquidityAdded, event.EventType)
	require.Equal(t, big6(3), event.FeeTotal)
	require.Equal(t, provider, event.Payload["provider"])

	activity := env.q.GetProviderActivity(context.Background(), provider)
	require.True(t, activity.Success)
	require.Len(t, activity.Data, 1)
}

func TestRecordWithdrawalUsesRemovalEventType(t *testing.T) {
	env := newTestEnv()

	resp := env.q.RecordWithdrawal(context.Background(), pubkey(0x44).String(), big6(100), big6(90), nil, nil, "tx-wd")
	require.True(t, resp.Success)
	require.Equal(t, metastore.PoolActivityWithdraw, resp.Data.Kind)
	require.Len(t, env.meta.feeEvents, 1)
	require.Equal(t, metastore.FeeEventLiquidityRemoved, env.meta.feeEvents[0].EventType)
}
