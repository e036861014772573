package querier

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
)

// Position statuses as exposed by the combined view.
const (
	PositionOpen       = "OPEN"
	PositionClosed     = "CLOSED"
	PositionLiquidated = "LIQUIDATED"
)

// GetPosition merges the ledger account and the metadata record for one
// position PDA. The partial-close history only lives in metadata; remaining
// size and collateral prefer the ledger when present.
func (q *Querier) GetPosition(ctx context.Context, positionPDA string) Response[CombinedPosition] {
	var (
		account   *onchain.PositionAccount
		ledgerErr error
		meta      metastore.PositionRecord
		metaErr   error
	)
	var wg conc.WaitGroup
	wg.Go(func() { account, ledgerErr = q.ledger.PositionByPDA(ctx, positionPDA) })
	wg.Go(func() { meta, metaErr = q.meta.FindPositionByPDA(ctx, positionPDA) })
	wg.Wait()

	if ledgerErr != nil && !errors.Is(ledgerErr, onchain.ErrAccountNotFound) {
		q.logger.Error("position ledger lookup failed", "position", positionPDA, "err", ledgerErr)
		return failErr[CombinedPosition](srcLedger, ledgerErr, "failed to load position account")
	}
	if metaErr != nil && !errors.Is(metaErr, metastore.ErrNotFound) {
		q.logger.Error("position metadata lookup failed", "position", positionPDA, "err", metaErr)
		return failErr[CombinedPosition](srcMeta, metaErr, "failed to load position metadata")
	}
	if ledgerErr != nil && metaErr != nil {
		return notFound[CombinedPosition]("position not found")
	}

	var metaPtr *metastore.PositionRecord
	if metaErr == nil {
		metaPtr = &meta
	}
	return ok(combinePosition(positionPDA, account, metaPtr))
}

func (q *Querier) GetPositionsByOwner(ctx context.Context, owner string) Response[[]CombinedPosition] {
	return q.listPositions(ctx,
		func(item onchain.KeyedPosition) bool { return item.Account.Owner.String() == owner },
		func(ctx context.Context) ([]metastore.PositionRecord, error) {
			return q.meta.ListPositionsByOwner(ctx, owner)
		},
	)
}

func (q *Querier) GetPositionsByBaskt(ctx context.Context, basktID string) Response[[]CombinedPosition] {
	return q.listPositions(ctx,
		func(item onchain.KeyedPosition) bool { return item.Account.Baskt.String() == basktID },
		func(ctx context.Context) ([]metastore.PositionRecord, error) {
			return q.meta.ListPositionsByBaskt(ctx, basktID)
		},
	)
}

func (q *Querier) listPositions(
	ctx context.Context,
	keep func(onchain.KeyedPosition) bool,
	loadMeta func(context.Context) ([]metastore.PositionRecord, error),
) Response[[]CombinedPosition] {
	var (
		accounts  []onchain.KeyedPosition
		ledgerErr error
		records   []metastore.PositionRecord
		metaErr   error
	)
	var wg conc.WaitGroup
	wg.Go(func() { accounts, ledgerErr = q.ledger.Positions(ctx) })
	wg.Go(func() { records, metaErr = loadMeta(ctx) })
	wg.Wait()

	if ledgerErr != nil {
		q.logger.Error("position ledger scan failed", "err", ledgerErr)
		return failErr[[]CombinedPosition](srcLedger, ledgerErr, "failed to scan position accounts")
	}
	if metaErr != nil {
		q.logger.Error("position metadata listing failed", "err", metaErr)
		return failErr[[]CombinedPosition](srcMeta, metaErr, "failed to list position metadata")
	}

	accountByPDA := make(map[string]*onchain.PositionAccount, len(accounts))
	keys := make([]string, 0, len(accounts)+len(records))
	for _, item := range accounts {
		if !keep(item) {
			continue
		}
		key := item.Pubkey.String()
		accountByPDA[key] = item.Account
		keys = append(keys, key)
	}
	metaByPDA := make(map[string]*metastore.PositionRecord, len(records))
	for _, record := range records {
		if _, seen := accountByPDA[record.PositionPDA]; !seen {
			keys = append(keys, record.PositionPDA)
		}
		metaByPDA[record.PositionPDA] = &record
	}
	sort.Strings(keys)

	combined := make([]CombinedPosition, 0, len(keys))
	for _, key := range keys {
		combined = append(combined, combinePosition(key, accountByPDA[key], metaByPDA[key]))
	}
	return ok(combined)
}

// RecordPartialClose appends one settlement to a position's history and
// persists the new remaining amounts. Remaining size never increases; a
// close that consumes the full remainder flips the status to CLOSED.
func (q *Querier) RecordPartialClose(ctx context.Context, positionPDA string, settlement metastore.SettlementRecord) Response[CombinedPosition] {
	record, err := q.meta.FindPositionByPDA(ctx, positionPDA)
	if err != nil {
		q.logger.Error("position lookup for partial close failed", "position", positionPDA, "err", err)
		return failErr[CombinedPosition](srcMeta, err, "position not found")
	}

	closed := bigOrZero(settlement.SizeClosed)
	remainingSize := new(big.Int).Sub(bigOrZero(record.RemainingSize), closed)
	if remainingSize.Sign() < 0 {
		remainingSize.SetInt64(0)
	}

	remainingCollateral := bigOrZero(record.RemainingCollateral)
	if record.RemainingSize != nil && record.RemainingSize.Sign() > 0 {
		// Collateral is released proportionally to the size closed.
		released := new(big.Int).Mul(remainingCollateral, closed)
		released.Quo(released, record.RemainingSize)
		remainingCollateral = new(big.Int).Sub(remainingCollateral, released)
		if remainingCollateral.Sign() < 0 {
			remainingCollateral.SetInt64(0)
		}
	}

	status := record.Status
	if remainingSize.Sign() == 0 {
		status = PositionClosed
	} else if status == "" {
		status = PositionOpen
	}

	if settlement.Timestamp.IsZero() {
		settlement.Timestamp = q.now().UTC()
	}
	if err := q.meta.AppendPartialClose(ctx, positionPDA, settlement, remainingSize, remainingCollateral, status); err != nil {
		q.logger.Error("partial close append failed", "position", positionPDA, "err", err)
		return failErr[CombinedPosition](srcMeta, err, "failed to record partial close")
	}
	return q.GetPosition(ctx, positionPDA)
}

// combinePosition builds the single record for a PDA. At least one source is
// non-nil.
func combinePosition(positionPDA string, account *onchain.PositionAccount, meta *metastore.PositionRecord) CombinedPosition {
	position := CombinedPosition{PositionPDA: positionPDA}
	if meta != nil {
		position.BasktID = meta.BasktID
		position.Owner = meta.Owner
		position.Status = meta.Status
		position.IsLong = meta.IsLong
		position.EntryPrice = bigOrZero(meta.EntryPrice)
		position.ExitPrice = bigOrZero(meta.ExitPrice)
		position.Size = bigOrZero(meta.Size)
		position.RemainingSize = bigOrZero(meta.RemainingSize)
		position.Collateral = bigOrZero(meta.Collateral)
		position.RemainingCollateral = bigOrZero(meta.RemainingCollateral)
		position.UsdcSize = bigOrZero(meta.UsdcSize)
		position.PartialCloses = meta.PartialCloses
		position.OpenedAt = meta.OpenedAt
		position.ClosedAt = meta.ClosedAt
	} else {
		position.EntryPrice = new(big.Int)
		position.ExitPrice = new(big.Int)
		position.Size = new(big.Int)
		position.RemainingSize = new(big.Int)
		position.Collateral = new(big.Int)
		position.RemainingCollateral = new(big.Int)
		position.UsdcSize = new(big.Int)
		position.PartialCloses = []metastore.SettlementRecord{}
	}

	if account != nil {
		position.OnLedger = true
		position.BasktID = account.Baskt.String()
		position.Owner = account.Owner.String()
		position.Status = account.Status.String()
		position.IsLong = account.IsLong
		position.EntryPrice = new(big.Int).SetUint64(account.EntryPrice)
		position.Size = new(big.Int).SetUint64(account.Size)
		position.RemainingSize = new(big.Int).SetUint64(account.RemainingSize)
		position.Collateral = new(big.Int).SetUint64(account.Collateral)
		position.RemainingCollateral = new(big.Int).SetUint64(account.RemainingCollateral)
		if position.OpenedAt.IsZero() && account.OpenedAt > 0 {
			position.OpenedAt = time.Unix(account.OpenedAt, 0).UTC()
		}
	}

	if position.Status == "" {
		position.Status = derivePositionStatus(position.RemainingSize, len(position.PartialCloses))
	}
	position.UsdcSize = deriveUsdcSize(position.UsdcSize, position.Size, position.EntryPrice)
	if position.Status == PositionOpen {
		position.LiquidationPrice = liquidationPrice(position.EntryPrice, position.RemainingCollateral, position.RemainingSize, position.IsLong)
	}
	return position
}

// derivePositionStatus is the fallback when neither source carries a status.
func derivePositionStatus(remainingSize *big.Int, closes int) string {
	if remainingSize.Sign() == 0 && closes > 0 {
		return PositionClosed
	}
	return PositionOpen
}

// liquidationPrice is the entry price shifted by the collateral buffer per
// unit of remaining size: entry -/+ remainingCollateral x 1e6 /
// remainingSize. Nil when the position has no remaining size.
func liquidationPrice(entryPrice, remainingCollateral, remainingSize *big.Int, isLong bool) *big.Int {
	if remainingSize == nil || remainingSize.Sign() <= 0 || entryPrice == nil {
		return nil
	}
	buffer := new(big.Int).Mul(bigOrZero(remainingCollateral), usdcScale)
	buffer.Quo(buffer, remainingSize)
	if isLong {
		liq := new(big.Int).Sub(entryPrice, buffer)
		if liq.Sign() < 0 {
			liq.SetInt64(0)
		}
		return liq
	}
	return new(big.Int).Add(entryPrice, buffer)
}
