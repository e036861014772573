package querier

import (
	"context"
	"errors"
	"math/big"
	"sort"

	"github.com/sourcegraph/conc"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
)

// GetOrder merges the ledger account and the metadata record for one order
// PDA. Exactly one record exists per PDA; ledger fields win when both
// sources have them.
func (q *Querier) GetOrder(ctx context.Context, orderPDA string) Response[CombinedOrder] {
	key := metastore.NormalizeOrderPDA(orderPDA)

	var (
		account   *onchain.OrderAccount
		ledgerErr error
		meta      metastore.OrderRecord
		metaErr   error
	)
	var wg conc.WaitGroup
	wg.Go(func() { account, ledgerErr = q.ledger.OrderByPDA(ctx, orderPDA) })
	wg.Go(func() { meta, metaErr = q.meta.FindOrderByPDA(ctx, key) })
	wg.Wait()

	if ledgerErr != nil && !errors.Is(ledgerErr, onchain.ErrAccountNotFound) {
		q.logger.Error("order ledger lookup failed", "order", key, "err", ledgerErr)
		return failErr[CombinedOrder](srcLedger, ledgerErr, "failed to load order account")
	}
	if metaErr != nil && !errors.Is(metaErr, metastore.ErrNotFound) {
		q.logger.Error("order metadata lookup failed", "order", key, "err", metaErr)
		return failErr[CombinedOrder](srcMeta, metaErr, "failed to load order metadata")
	}
	if ledgerErr != nil && metaErr != nil {
		return notFound[CombinedOrder]("order not found")
	}

	var metaPtr *metastore.OrderRecord
	if metaErr == nil {
		metaPtr = &meta
	}
	return ok(combineOrder(key, account, metaPtr))
}

// GetOrdersByOwner lists an owner's orders from both sources, one combined
// record per PDA.
func (q *Querier) GetOrdersByOwner(ctx context.Context, owner string) Response[[]CombinedOrder] {
	return q.listOrders(ctx,
		func(item onchain.KeyedOrder) bool { return item.Account.Owner.String() == owner },
		func(ctx context.Context) ([]metastore.OrderRecord, error) { return q.meta.ListOrdersByOwner(ctx, owner) },
	)
}

// GetOrdersByBaskt lists a baskt's orders from both sources.
func (q *Querier) GetOrdersByBaskt(ctx context.Context, basktID string) Response[[]CombinedOrder] {
	return q.listOrders(ctx,
		func(item onchain.KeyedOrder) bool { return item.Account.Baskt.String() == basktID },
		func(ctx context.Context) ([]metastore.OrderRecord, error) { return q.meta.ListOrdersByBaskt(ctx, basktID) },
	)
}

func (q *Querier) listOrders(
	ctx context.Context,
	keep func(onchain.KeyedOrder) bool,
	loadMeta func(context.Context) ([]metastore.OrderRecord, error),
) Response[[]CombinedOrder] {
	var (
		accounts  []onchain.KeyedOrder
		ledgerErr error
		records   []metastore.OrderRecord
		metaErr   error
	)
	var wg conc.WaitGroup
	wg.Go(func() { accounts, ledgerErr = q.ledger.Orders(ctx) })
	wg.Go(func() { records, metaErr = loadMeta(ctx) })
	wg.Wait()

	if ledgerErr != nil {
		q.logger.Error("order ledger scan failed", "err", ledgerErr)
		return failErr[[]CombinedOrder](srcLedger, ledgerErr, "failed to scan order accounts")
	}
	if metaErr != nil {
		q.logger.Error("order metadata listing failed", "err", metaErr)
		return failErr[[]CombinedOrder](srcMeta, metaErr, "failed to list order metadata")
	}

	accountByPDA := make(map[string]*onchain.OrderAccount, len(accounts))
	keys := make([]string, 0, len(accounts)+len(records))
	for _, item := range accounts {
		if !keep(item) {
			continue
		}
		key := metastore.NormalizeOrderPDA(item.Pubkey.String())
		accountByPDA[key] = item.Account
		keys = append(keys, key)
	}
	metaByPDA := make(map[string]*metastore.OrderRecord, len(records))
	for _, record := range records {
		key := metastore.NormalizeOrderPDA(record.OrderPDA)
		metaByPDA[key] = &record
		if _, seen := accountByPDA[key]; !seen {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	combined := make([]CombinedOrder, 0, len(keys))
	for _, key := range keys {
		combined = append(combined, combineOrder(key, accountByPDA[key], metaByPDA[key]))
	}
	return ok(combined)
}

// combineOrder builds the single record for a PDA. At least one source is
// non-nil.
func combineOrder(orderPDA string, account *onchain.OrderAccount, meta *metastore.OrderRecord) CombinedOrder {
	order := CombinedOrder{OrderPDA: orderPDA}
	if meta != nil {
		order.BasktID = meta.BasktID
		order.Owner = meta.Owner
		order.Status = meta.Status
		order.Action = meta.Action
		order.OrderType = meta.OrderType
		order.IsLong = meta.IsLong
		order.Size = bigOrZero(meta.Size)
		order.Collateral = bigOrZero(meta.Collateral)
		order.LimitPrice = bigOrZero(meta.LimitPrice)
		order.UsdcSize = bigOrZero(meta.UsdcSize)
		order.CreatedTx = meta.CreatedTx
		order.CreatedAt = meta.CreatedAt
		order.FilledTx = meta.FilledTx
		order.FilledAt = meta.FilledAt
		order.CanceledTx = meta.CanceledTx
		order.CanceledAt = meta.CanceledAt
	} else {
		order.Size = new(big.Int)
		order.Collateral = new(big.Int)
		order.LimitPrice = new(big.Int)
		order.UsdcSize = new(big.Int)
	}

	if account != nil {
		order.OnLedger = true
		order.BasktID = account.Baskt.String()
		order.Owner = account.Owner.String()
		order.Status = account.Status.String()
		order.Action = account.Action.String()
		order.OrderType = account.OrderType.String()
		order.IsLong = account.IsLong
		order.Size = new(big.Int).SetUint64(account.Size)
		order.Collateral = new(big.Int).SetUint64(account.Collateral)
		order.LimitPrice = new(big.Int).SetUint64(account.LimitPrice)
	}

	order.Size = reconstructSize(order.Size, order.Collateral, order.LimitPrice)
	order.UsdcSize = deriveUsdcSize(order.UsdcSize, order.Size, order.LimitPrice)
	return order
}

// reconstructSize backfills records persisted before size was stored:
// size = floor(collateral x 1e6 / limitPrice).
func reconstructSize(size, collateral, limitPrice *big.Int) *big.Int {
	if size.Sign() != 0 || collateral.Sign() <= 0 || limitPrice.Sign() <= 0 {
		return size
	}
	scaled := new(big.Int).Mul(collateral, usdcScale)
	return scaled.Quo(scaled, limitPrice)
}

// deriveUsdcSize computes notional as size x price / 1e6 when no persisted
// value exists; a persisted value always wins.
func deriveUsdcSize(persisted, size, price *big.Int) *big.Int {
	if persisted.Sign() != 0 {
		return persisted
	}
	if size.Sign() <= 0 || price.Sign() <= 0 {
		return persisted
	}
	notional := new(big.Int).Mul(size, price)
	return notional.Quo(notional, usdcScale)
}
