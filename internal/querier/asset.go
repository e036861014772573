package querier

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
)

// GetAssetByAddress joins metadata, the ledger account and the price series
// for one address. Missing metadata or a missing ledger account degrade to a
// partial record; a missing price fails the lookup, because an asset without
// a live price is not tradable.
func (q *Querier) GetAssetByAddress(ctx context.Context, address string) Response[CombinedAsset] {
	var (
		meta       metastore.AssetRecord
		metaErr    error
		account    *onchain.AssetAccount
		ledgerErr  error
		refs       map[string]pricestore.WindowRefs
		priceErr   error
		membership map[string][]string
		basktsErr  error
	)

	now := q.now().UTC()
	var wg conc.WaitGroup
	wg.Go(func() { meta, metaErr = q.meta.FindAssetByAddress(ctx, address) })
	wg.Go(func() { account, ledgerErr = q.ledger.AssetByAddress(ctx, address) })
	wg.Go(func() { refs, priceErr = q.prices.BatchWindowPrices(ctx, []string{address}, now) })
	wg.Go(func() { membership, basktsErr = q.basktMembership(ctx) })
	wg.Wait()

	if metaErr != nil && !errors.Is(metaErr, metastore.ErrNotFound) {
		q.logger.Error("asset metadata lookup failed", "address", address, "err", metaErr)
		return failErr[CombinedAsset](srcMeta, metaErr, "failed to load asset metadata")
	}
	if ledgerErr != nil && !errors.Is(ledgerErr, onchain.ErrAccountNotFound) {
		q.logger.Error("asset ledger lookup failed", "address", address, "err", ledgerErr)
		return failErr[CombinedAsset](srcLedger, ledgerErr, "failed to load asset account")
	}
	if metaErr != nil && ledgerErr != nil {
		return notFound[CombinedAsset]("asset not found")
	}
	if priceErr != nil {
		q.logger.Error("asset price lookup failed", "address", address, "err", priceErr)
		return failErr[CombinedAsset](srcPrices, priceErr, "failed to load asset price")
	}
	if basktsErr != nil {
		q.logger.Warn("baskt membership lookup failed", "address", address, "err", basktsErr)
		membership = nil
	}

	windowRefs := refs[address]
	if windowRefs.Current == nil {
		return notFound[CombinedAsset]("asset has no live price")
	}

	combined, err := q.combineAsset(ctx, address, meta, account, windowRefs, membership, now)
	if err != nil {
		q.logger.Error("asset combination failed", "address", address, "err", err)
		return failErr[CombinedAsset](srcPrices, err, "failed to combine asset")
	}
	return ok(combined)
}

// GetAssetByTicker resolves a ticker through metadata first, then the ledger
// scan, and delegates to the address lookup.
func (q *Querier) GetAssetByTicker(ctx context.Context, ticker string) Response[CombinedAsset] {
	meta, err := q.meta.FindAssetByTicker(ctx, ticker)
	if err == nil {
		return q.GetAssetByAddress(ctx, meta.Address)
	}
	if !errors.Is(err, metastore.ErrNotFound) {
		q.logger.Error("asset ticker lookup failed", "ticker", ticker, "err", err)
		return failErr[CombinedAsset](srcMeta, err, "failed to load asset metadata")
	}

	accounts, ledgerErr := q.ledger.Assets(ctx)
	if ledgerErr != nil {
		q.logger.Error("asset ledger scan failed", "ticker", ticker, "err", ledgerErr)
		return failErr[CombinedAsset](srcLedger, ledgerErr, "failed to scan asset accounts")
	}
	for _, item := range accounts {
		if onchain.TickerString(item.Account.Ticker) == ticker {
			return q.GetAssetByAddress(ctx, item.Pubkey.String())
		}
	}
	return notFound[CombinedAsset]("asset not found")
}

// GetAllAssets lists every asset known to metadata or the ledger, joined
// with one batch price query. Assets without a current price are excluded;
// the listing fails closed per asset rather than failing the batch.
func (q *Querier) GetAllAssets(ctx context.Context) Response[[]CombinedAsset] {
	var (
		metaAssets []metastore.AssetRecord
		metaErr    error
		accounts   []onchain.KeyedAsset
		ledgerErr  error
		membership map[string][]string
		basktsErr  error
	)

	var wg conc.WaitGroup
	wg.Go(func() { metaAssets, metaErr = q.meta.ListAssets(ctx) })
	wg.Go(func() { accounts, ledgerErr = q.ledger.Assets(ctx) })
	wg.Go(func() { membership, basktsErr = q.basktMembership(ctx) })
	wg.Wait()

	if metaErr != nil {
		q.logger.Error("asset metadata listing failed", "err", metaErr)
		return failErr[[]CombinedAsset](srcMeta, metaErr, "failed to list asset metadata")
	}
	if ledgerErr != nil {
		q.logger.Error("asset ledger scan failed", "err", ledgerErr)
		return failErr[[]CombinedAsset](srcLedger, ledgerErr, "failed to scan asset accounts")
	}
	if basktsErr != nil {
		q.logger.Warn("baskt membership lookup failed", "err", basktsErr)
		membership = nil
	}

	metaByAddress := make(map[string]metastore.AssetRecord, len(metaAssets))
	addresses := make([]string, 0, len(metaAssets)+len(accounts))
	for _, record := range metaAssets {
		metaByAddress[record.Address] = record
		addresses = append(addresses, record.Address)
	}
	accountByAddress := make(map[string]*onchain.AssetAccount, len(accounts))
	for _, item := range accounts {
		address := item.Pubkey.String()
		accountByAddress[address] = item.Account
		if _, seen := metaByAddress[address]; !seen {
			addresses = append(addresses, address)
		}
	}
	sort.Strings(addresses)

	now := q.now().UTC()
	refs, err := q.prices.BatchWindowPrices(ctx, addresses, now)
	if err != nil {
		q.logger.Error("asset batch price query failed", "err", err)
		return failErr[[]CombinedAsset](srcPrices, err, "failed to load asset prices")
	}

	combined := make([]CombinedAsset, 0, len(addresses))
	for _, address := range addresses {
		windowRefs, found := refs[address]
		if !found || windowRefs.Current == nil {
			continue
		}
		asset, err := q.combineAsset(ctx, address, metaByAddress[address], accountByAddress[address], windowRefs, membership, now)
		if err != nil {
			q.logger.Warn("asset combination failed, skipping", "address", address, "err", err)
			continue
		}
		combined = append(combined, asset)
	}
	return ok(combined)
}

// combineAsset builds the merged record. The caller has already established
// that a current price exists.
func (q *Querier) combineAsset(
	ctx context.Context,
	address string,
	meta metastore.AssetRecord,
	account *onchain.AssetAccount,
	refs pricestore.WindowRefs,
	membership map[string][]string,
	now time.Time,
) (CombinedAsset, error) {
	asset := CombinedAsset{
		Ticker:   meta.Ticker,
		Address:  address,
		Name:     meta.Name,
		LogoURL:  meta.LogoURL,
		Config:   meta.Config,
		Price:    refs.Current.Price,
		BasktIDs: membership[address],
	}
	if account != nil {
		if asset.Ticker == "" {
			asset.Ticker = onchain.TickerString(account.Ticker)
		}
		asset.Ledger = &AssetLedgerInfo{
			Authority:   account.Authority.String(),
			PriceOracle: account.PriceOracle.String(),
			MaxLeverage: account.MaxLeverage,
			IsActive:    account.IsActive,
		}
	}

	dayRef, err := resolveReference(refs.Day, now.Add(-24*time.Hour), func() (*pricestore.PricePoint, error) {
		sample, err := q.prices.OldestPrice(ctx, address)
		if err != nil {
			if errors.Is(err, pricestore.ErrNoSample) {
				return nil, nil
			}
			return nil, err
		}
		return &sample, nil
	})
	if err != nil {
		return CombinedAsset{}, err
	}
	if dayRef != nil {
		asset.Change24h = changePercent(asset.Price, dayRef.Price)
	}
	return asset, nil
}

// basktMembership maps each asset address to the baskt IDs that allocate it.
func (q *Querier) basktMembership(ctx context.Context) (map[string][]string, error) {
	baskts, err := q.meta.ListBaskts(ctx)
	if err != nil {
		return nil, err
	}
	membership := make(map[string][]string)
	for _, baskt := range baskts {
		for _, allocation := range baskt.Allocations {
			membership[allocation.AssetAddress] = append(membership[allocation.AssetAddress], baskt.BasktID)
		}
	}
	return membership, nil
}
