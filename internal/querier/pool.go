package querier

import (
	"context"
	"errors"
	"math/big"

	"github.com/basktfi/backend/internal/metastore"
)

// GetPool returns the persisted pool mirror, resyncing from the ledger the
// first time it is asked for a pool that was never synced.
func (q *Querier) GetPool(ctx context.Context) Response[LiquidityPoolView] {
	poolKey, err := q.ledger.PoolAddress()
	if err != nil {
		q.logger.Error("pool PDA derivation failed", "err", err)
		return failErr[LiquidityPoolView](srcLedger, err, "failed to derive pool address")
	}
	record, err := q.meta.FindPool(ctx, poolKey)
	if err == nil {
		return ok(poolView(record))
	}
	if !errors.Is(err, metastore.ErrNotFound) {
		q.logger.Error("pool metadata lookup failed", "pool", poolKey, "err", err)
		return failErr[LiquidityPoolView](srcMeta, err, "failed to load pool")
	}
	return q.ResyncPool(ctx)
}

// ResyncPool re-reads the ledger pool account and overwrites the metadata
// mirror. The mirror has no mutation logic of its own; it only ever reflects
// ledger truth.
func (q *Querier) ResyncPool(ctx context.Context) Response[LiquidityPoolView] {
	poolKey, err := q.ledger.PoolAddress()
	if err != nil {
		q.logger.Error("pool PDA derivation failed", "err", err)
		return failErr[LiquidityPoolView](srcLedger, err, "failed to derive pool address")
	}
	account, err := q.ledger.Pool(ctx)
	if err != nil {
		q.logger.Error("pool ledger fetch failed", "pool", poolKey, "err", err)
		return failErr[LiquidityPoolView](srcLedger, err, "failed to load pool account")
	}

	record := metastore.PoolRecord{
		PoolKey:        poolKey,
		LpMint:         account.LpMint.String(),
		TotalLiquidity: new(big.Int).SetUint64(account.TotalLiquidity),
		TotalShares:    new(big.Int).SetUint64(account.TotalShares),
		FeeBps:         account.FeeBps,
		QueueHead:      account.WithdrawQueueHead,
		QueueTail:      account.WithdrawQueueTail,
		SyncedAt:       q.now().UTC(),
	}
	if err := q.meta.UpsertPool(ctx, record); err != nil {
		q.logger.Error("pool mirror persist failed", "pool", poolKey, "err", err)
		return failErr[LiquidityPoolView](srcMeta, err, "failed to persist pool snapshot")
	}
	return ok(poolView(record))
}

// RecordDeposit books a liquidity deposit: one activity row plus the
// matching fee event.
func (q *Querier) RecordDeposit(ctx context.Context, provider string, amount, lpTokens, feeToTreasury, feeToBlp *big.Int, tx string) Response[metastore.PoolActivityRecord] {
	return q.recordActivity(ctx, metastore.PoolActivityDeposit, metastore.FeeEventLiquidityAdded, provider, amount, lpTokens, feeToTreasury, feeToBlp, tx)
}

// RecordWithdrawal books a liquidity withdrawal.
func (q *Querier) RecordWithdrawal(ctx context.Context, provider string, amount, lpTokens, feeToTreasury, feeToBlp *big.Int, tx string) Response[metastore.PoolActivityRecord] {
	return q.recordActivity(ctx, metastore.PoolActivityWithdraw, metastore.FeeEventLiquidityRemoved, provider, amount, lpTokens, feeToTreasury, feeToBlp, tx)
}

func (q *Querier) recordActivity(ctx context.Context, kind, feeEventType, provider string, amount, lpTokens, feeToTreasury, feeToBlp *big.Int, tx string) Response[metastore.PoolActivityRecord] {
	record := metastore.PoolActivityRecord{
		Kind:      kind,
		Provider:  provider,
		Amount:    bigOrZero(amount),
		LpTokens:  bigOrZero(lpTokens),
		Tx:        tx,
		Timestamp: q.now().UTC(),
	}
	id, err := q.meta.InsertPoolActivity(ctx, record)
	if err != nil {
		q.logger.Error("pool activity insert failed", "kind", kind, "provider", provider, "err", err)
		return failErr[metastore.PoolActivityRecord](srcMeta, err, "failed to record pool activity")
	}
	record.ID = id

	treasury := bigOrZero(feeToTreasury)
	blp := bigOrZero(feeToBlp)
	event := metastore.FeeEventRecord{
		EventType:     feeEventType,
		FeeToTreasury: treasury,
		FeeToBlp:      blp,
		FeeTotal:      new(big.Int).Add(treasury, blp),
		Payload: map[string]any{
			"provider":   provider,
			"activityId": id,
		},
		Tx:        tx,
		Timestamp: record.Timestamp,
	}
	if _, err := q.meta.InsertFeeEvent(ctx, event); err != nil {
		// The activity row is already durable; the fee stream catches up on
		// the next reconcile rather than failing the booking.
		q.logger.Warn("fee event insert failed after activity", "kind", kind, "err", err)
	}
	return ok(record)
}

// GetProviderActivity lists a provider's deposit/withdraw history.
func (q *Querier) GetProviderActivity(ctx context.Context, provider string) Response[[]metastore.PoolActivityRecord] {
	activity, err := q.meta.ListPoolActivityByProvider(ctx, provider)
	if err != nil {
		q.logger.Error("pool activity listing failed", "provider", provider, "err", err)
		return failErr[[]metastore.PoolActivityRecord](srcMeta, err, "failed to list pool activity")
	}
	return ok(activity)
}

func poolView(record metastore.PoolRecord) LiquidityPoolView {
	return LiquidityPoolView{
		PoolKey:        record.PoolKey,
		LpMint:         record.LpMint,
		TotalLiquidity: decimalFromScaled(record.TotalLiquidity),
		TotalShares:    decimalFromScaled(record.TotalShares),
		FeeBps:         record.FeeBps,
		QueueHead:      record.QueueHead,
		QueueTail:      record.QueueTail,
		SyncedAt:       record.SyncedAt,
	}
}
