package querier

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
)

var bpsScale = decimal.NewFromInt(10_000)

// allocation is the merged per-asset row used for NAV math. BaselinePrice is
// already converted to a USD decimal.
type allocation struct {
	assetAddress  string
	isLong        bool
	weightBps     uint64
	baselinePrice decimal.Decimal
}

// GetBasktByID joins the metadata record and the ledger account for one
// baskt, resolves its allocations to combined assets and derives NAV and the
// performance windows.
func (q *Querier) GetBasktByID(ctx context.Context, basktID string) Response[CombinedBaskt] {
	var (
		meta      metastore.BasktRecord
		metaErr   error
		account   *onchain.BasktAccount
		ledgerErr error
		assetCtx  *assetLookup
		assetsErr error
	)

	var wg conc.WaitGroup
	wg.Go(func() { meta, metaErr = q.meta.FindBasktByID(ctx, basktID) })
	wg.Go(func() { account, ledgerErr = q.ledger.BasktByID(ctx, basktID) })
	wg.Go(func() { assetCtx, assetsErr = q.loadAssetLookup(ctx) })
	wg.Wait()

	if metaErr != nil && !errors.Is(metaErr, metastore.ErrNotFound) {
		q.logger.Error("baskt metadata lookup failed", "baskt", basktID, "err", metaErr)
		return failErr[CombinedBaskt](srcMeta, metaErr, "failed to load baskt metadata")
	}
	if ledgerErr != nil && !errors.Is(ledgerErr, onchain.ErrAccountNotFound) {
		q.logger.Error("baskt ledger lookup failed", "baskt", basktID, "err", ledgerErr)
		return failErr[CombinedBaskt](srcLedger, ledgerErr, "failed to load baskt account")
	}
	if metaErr != nil && ledgerErr != nil {
		return notFound[CombinedBaskt]("baskt not found")
	}
	if assetsErr != nil {
		q.logger.Error("asset lookup load failed", "baskt", basktID, "err", assetsErr)
		return failErr[CombinedBaskt](srcMeta, assetsErr, "failed to load assets")
	}

	var metaPtr *metastore.BasktRecord
	if metaErr == nil {
		metaPtr = &meta
	}
	combined, err := q.combineBaskt(ctx, basktID, metaPtr, account, assetCtx)
	if err != nil {
		q.logger.Error("baskt combination failed", "baskt", basktID, "err", err)
		return failErr[CombinedBaskt](srcPrices, err, "failed to combine baskt")
	}
	return ok(combined)
}

// GetAllBaskts lists every baskt known to either source.
func (q *Querier) GetAllBaskts(ctx context.Context) Response[[]CombinedBaskt] {
	var (
		metaBaskts []metastore.BasktRecord
		metaErr    error
		accounts   []onchain.KeyedBaskt
		ledgerErr  error
		assetCtx   *assetLookup
		assetsErr  error
	)

	var wg conc.WaitGroup
	wg.Go(func() { metaBaskts, metaErr = q.meta.ListBaskts(ctx) })
	wg.Go(func() { accounts, ledgerErr = q.ledger.Baskts(ctx) })
	wg.Go(func() { assetCtx, assetsErr = q.loadAssetLookup(ctx) })
	wg.Wait()

	if metaErr != nil {
		q.logger.Error("baskt metadata listing failed", "err", metaErr)
		return failErr[[]CombinedBaskt](srcMeta, metaErr, "failed to list baskt metadata")
	}
	if ledgerErr != nil {
		q.logger.Error("baskt ledger scan failed", "err", ledgerErr)
		return failErr[[]CombinedBaskt](srcLedger, ledgerErr, "failed to scan baskt accounts")
	}
	if assetsErr != nil {
		q.logger.Error("asset lookup load failed", "err", assetsErr)
		return failErr[[]CombinedBaskt](srcMeta, assetsErr, "failed to load assets")
	}

	metaByID := make(map[string]metastore.BasktRecord, len(metaBaskts))
	ids := make([]string, 0, len(metaBaskts)+len(accounts))
	for _, record := range metaBaskts {
		metaByID[record.BasktID] = record
		ids = append(ids, record.BasktID)
	}
	accountByID := make(map[string]*onchain.BasktAccount, len(accounts))
	for _, item := range accounts {
		id := item.Pubkey.String()
		accountByID[id] = item.Account
		if _, seen := metaByID[id]; !seen {
			ids = append(ids, id)
		}
	}

	combined := make([]CombinedBaskt, 0, len(ids))
	for _, id := range ids {
		var metaPtr *metastore.BasktRecord
		if record, found := metaByID[id]; found {
			metaPtr = &record
		}
		baskt, err := q.combineBaskt(ctx, id, metaPtr, accountByID[id], assetCtx)
		if err != nil {
			q.logger.Warn("baskt combination failed, skipping", "baskt", id, "err", err)
			continue
		}
		combined = append(combined, baskt)
	}
	return ok(combined)
}

// ResyncBaskt re-reads the ledger account, persists the snapshot into
// metadata and records the freshly computed NAV into the history series.
func (q *Querier) ResyncBaskt(ctx context.Context, basktID string) Response[CombinedBaskt] {
	account, err := q.ledger.BasktByID(ctx, basktID)
	if err != nil {
		q.logger.Error("baskt resync ledger fetch failed", "baskt", basktID, "err", err)
		return failErr[CombinedBaskt](srcLedger, err, "failed to load baskt account")
	}

	now := q.now().UTC()
	record := metastore.BasktRecord{
		BasktID:     basktID,
		Creator:     account.Creator.String(),
		Status:      account.Status.String(),
		BaselineNav: new(big.Int).SetUint64(account.BaselineNav),
		Allocations: make([]metastore.BasktAllocationRecord, 0, len(account.CurrentAssets)),
		SyncedAt:    now,
	}
	for _, cfg := range account.CurrentAssets {
		record.Allocations = append(record.Allocations, metastore.BasktAllocationRecord{
			AssetAddress:  cfg.AssetAddress.String(),
			IsLong:        cfg.IsLong,
			WeightBps:     cfg.WeightBps,
			BaselinePrice: new(big.Int).SetUint64(cfg.BaselinePrice),
		})
	}
	if err := q.meta.UpsertBasktSnapshot(ctx, record); err != nil {
		q.logger.Error("baskt resync persist failed", "baskt", basktID, "err", err)
		return failErr[CombinedBaskt](srcMeta, err, "failed to persist baskt snapshot")
	}

	assetCtx, err := q.loadAssetLookup(ctx)
	if err != nil {
		q.logger.Error("asset lookup load failed", "baskt", basktID, "err", err)
		return failErr[CombinedBaskt](srcMeta, err, "failed to load assets")
	}
	combined, err := q.combineBaskt(ctx, basktID, &record, account, assetCtx)
	if err != nil {
		q.logger.Error("baskt combination failed", "baskt", basktID, "err", err)
		return failErr[CombinedBaskt](srcPrices, err, "failed to combine baskt")
	}

	if !combined.Nav.IsZero() {
		if err := q.prices.RecordNav(ctx, basktID, now, combined.Nav); err != nil {
			q.logger.Warn("nav history append failed", "baskt", basktID, "err", err)
		}
	}
	return ok(combined)
}

// assetLookup caches the shared asset context for resolving allocations.
type assetLookup struct {
	metaByAddress map[string]metastore.AssetRecord
	accounts      map[string]*onchain.AssetAccount
	membership    map[string][]string
}

func (q *Querier) loadAssetLookup(ctx context.Context) (*assetLookup, error) {
	var (
		metaAssets []metastore.AssetRecord
		metaErr    error
		accounts   []onchain.KeyedAsset
		ledgerErr  error
	)
	var wg conc.WaitGroup
	wg.Go(func() { metaAssets, metaErr = q.meta.ListAssets(ctx) })
	wg.Go(func() { accounts, ledgerErr = q.ledger.Assets(ctx) })
	wg.Wait()
	if metaErr != nil {
		return nil, metaErr
	}
	if ledgerErr != nil {
		return nil, ledgerErr
	}

	lookup := &assetLookup{
		metaByAddress: make(map[string]metastore.AssetRecord, len(metaAssets)),
		accounts:      make(map[string]*onchain.AssetAccount, len(accounts)),
	}
	for _, record := range metaAssets {
		lookup.metaByAddress[record.Address] = record
	}
	for _, item := range accounts {
		lookup.accounts[item.Pubkey.String()] = item.Account
	}
	return lookup, nil
}

// combineBaskt merges one baskt from both sources. Ledger fields win when
// the account exists; a metadata-only baskt renders with its last persisted
// snapshot.
func (q *Querier) combineBaskt(
	ctx context.Context,
	basktID string,
	meta *metastore.BasktRecord,
	account *onchain.BasktAccount,
	assets *assetLookup,
) (CombinedBaskt, error) {
	combined := CombinedBaskt{BasktID: basktID}
	if meta != nil {
		combined.Name = meta.Name
		combined.Description = meta.Description
		combined.Creator = meta.Creator
		combined.Status = meta.Status
		combined.BaselineNav = decimalFromScaled(meta.BaselineNav)
		combined.SyncedAt = meta.SyncedAt
	}

	var allocations []allocation
	if account != nil {
		combined.Creator = account.Creator.String()
		combined.Status = account.Status.String()
		combined.BaselineNav = decimal.NewFromBigInt(new(big.Int).SetUint64(account.BaselineNav), -6)
		allocations = make([]allocation, 0, len(account.CurrentAssets))
		for _, cfg := range account.CurrentAssets {
			allocations = append(allocations, allocation{
				assetAddress:  cfg.AssetAddress.String(),
				isLong:        cfg.IsLong,
				weightBps:     cfg.WeightBps,
				baselinePrice: decimal.NewFromBigInt(new(big.Int).SetUint64(cfg.BaselinePrice), -6),
			})
		}
	} else if meta != nil {
		allocations = make([]allocation, 0, len(meta.Allocations))
		for _, cfg := range meta.Allocations {
			allocations = append(allocations, allocation{
				assetAddress:  cfg.AssetAddress,
				isLong:        cfg.IsLong,
				weightBps:     cfg.WeightBps,
				baselinePrice: decimalFromScaled(cfg.BaselinePrice),
			})
		}
	}

	now := q.now().UTC()
	addresses := make([]string, 0, len(allocations))
	for _, a := range allocations {
		addresses = append(addresses, a.assetAddress)
	}
	refs, err := q.prices.BatchWindowPrices(ctx, addresses, now)
	if err != nil {
		return CombinedBaskt{}, err
	}

	combined.Assets = make([]BasktAssetView, 0, len(allocations))
	for _, a := range allocations {
		windowRefs, found := refs[a.assetAddress]
		if !found || windowRefs.Current == nil {
			// Unresolvable allocation: the baskt renders with fewer
			// assets rather than failing entirely.
			continue
		}
		asset, err := q.combineAsset(ctx, a.assetAddress, assets.metaByAddress[a.assetAddress], assets.accounts[a.assetAddress], windowRefs, assets.membership, now)
		if err != nil {
			q.logger.Warn("allocation resolution failed, skipping", "baskt", basktID, "asset", a.assetAddress, "err", err)
			continue
		}
		asset.Weight = decimal.NewFromInt(int64(a.weightBps)).Div(hundred)
		combined.Assets = append(combined.Assets, BasktAssetView{
			CombinedAsset: asset,
			IsLong:        a.isLong,
			WeightBps:     a.weightBps,
			BaselinePrice: a.baselinePrice,
		})
	}

	nav, err := q.resolveNav(ctx, basktID, combined.BaselineNav, combined.Assets)
	if err != nil {
		return CombinedBaskt{}, err
	}
	combined.Nav = nav

	performance, err := q.basktPerformance(ctx, basktID, now)
	if err != nil {
		return CombinedBaskt{}, err
	}
	combined.Performance = performance
	return combined, nil
}

// resolveNav prefers the NAV history series; without history it derives NAV
// from baseline and the resolved allocations.
func (q *Querier) resolveNav(ctx context.Context, basktID string, baselineNav decimal.Decimal, assets []BasktAssetView) (decimal.Decimal, error) {
	latest, err := q.prices.LatestNav(ctx, basktID)
	if err == nil {
		return latest.Price, nil
	}
	if !errors.Is(err, pricestore.ErrNoSample) {
		return decimal.Zero, err
	}
	return computeNav(baselineNav, assets), nil
}

// computeNav derives NAV from the baseline and per-asset performance:
// baseline x sum(weight x perf), with perf = price/baseline for longs and
// 2 - price/baseline for shorts. Allocations without a usable baseline price
// contribute nothing.
func computeNav(baselineNav decimal.Decimal, assets []BasktAssetView) decimal.Decimal {
	if baselineNav.IsZero() {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	total := decimal.Zero
	for _, asset := range assets {
		if asset.BaselinePrice.IsZero() {
			continue
		}
		perf := asset.Price.Div(asset.BaselinePrice)
		if !asset.IsLong {
			perf = two.Sub(perf)
		}
		weight := decimal.NewFromInt(int64(asset.WeightBps)).Div(bpsScale)
		total = total.Add(weight.Mul(perf))
	}
	return baselineNav.Mul(total)
}

// basktPerformance windows the NAV series. A baskt without history reports
// zero for every window until samples accumulate.
func (q *Querier) basktPerformance(ctx context.Context, basktID string, now time.Time) (PerformanceWindows, error) {
	refs, err := q.navWindowRefs(ctx, basktID, now)
	if err != nil {
		return PerformanceWindows{}, err
	}
	if refs.Current == nil {
		return PerformanceWindows{}, nil
	}
	return q.performanceFromRefs(ctx, refs, now, q.oldestNav, basktID)
}

// GetBasktPerformance exposes the NAV windows on their own.
func (q *Querier) GetBasktPerformance(ctx context.Context, basktID string) Response[PerformanceWindows] {
	windows, err := q.basktPerformance(ctx, basktID, q.now().UTC())
	if err != nil {
		q.logger.Error("baskt performance query failed", "baskt", basktID, "err", err)
		return failErr[PerformanceWindows](srcPrices, err, "failed to load baskt performance")
	}
	return ok(windows)
}
