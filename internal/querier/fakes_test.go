package querier

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
)

// fakeMeta is an in-memory MetadataStore. A non-nil failWith short-circuits
// every call, for exercising error mapping.
type fakeMeta struct {
	failWith error

	assets      map[string]metastore.AssetRecord
	baskts      map[string]metastore.BasktRecord
	orders      map[string]metastore.OrderRecord
	positions   map[string]metastore.PositionRecord
	feeEvents   []metastore.FeeEventRecord
	pools       map[string]metastore.PoolRecord
	activity    []metastore.PoolActivityRecord
	withdrawals map[uint64]metastore.WithdrawalRequestRecord
	wallets     map[string]metastore.WalletRecord
	accessCodes map[string]metastore.AccessCodeRecord
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		assets:      make(map[string]metastore.AssetRecord),
		baskts:      make(map[string]metastore.BasktRecord),
		orders:      make(map[string]metastore.OrderRecord),
		positions:   make(map[string]metastore.PositionRecord),
		pools:       make(map[string]metastore.PoolRecord),
		withdrawals: make(map[uint64]metastore.WithdrawalRequestRecord),
		wallets:     make(map[string]metastore.WalletRecord),
		accessCodes: make(map[string]metastore.AccessCodeRecord),
	}
}

func (f *fakeMeta) FindAssetByAddress(_ context.Context, address string) (metastore.AssetRecord, error) {
	if f.failWith != nil {
		return metastore.AssetRecord{}, f.failWith
	}
	record, found := f.assets[address]
	if !found {
		return metastore.AssetRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) FindAssetByTicker(_ context.Context, ticker string) (metastore.AssetRecord, error) {
	if f.failWith != nil {
		return metastore.AssetRecord{}, f.failWith
	}
	for _, record := range f.assets {
		if record.Ticker == ticker {
			return record, nil
		}
	}
	return metastore.AssetRecord{}, metastore.ErrNotFound
}

func (f *fakeMeta) ListAssets(_ context.Context) ([]metastore.AssetRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]metastore.AssetRecord, 0, len(f.assets))
	for _, record := range f.assets {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (f *fakeMeta) FindBasktByID(_ context.Context, basktID string) (metastore.BasktRecord, error) {
	if f.failWith != nil {
		return metastore.BasktRecord{}, f.failWith
	}
	record, found := f.baskts[basktID]
	if !found {
		return metastore.BasktRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) ListBaskts(_ context.Context) ([]metastore.BasktRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]metastore.BasktRecord, 0, len(f.baskts))
	for _, record := range f.baskts {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasktID < out[j].BasktID })
	return out, nil
}

func (f *fakeMeta) UpsertBasktSnapshot(_ context.Context, record metastore.BasktRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	existing, found := f.baskts[record.BasktID]
	if found {
		existing.Creator = record.Creator
		existing.Status = record.Status
		existing.BaselineNav = record.BaselineNav
		existing.Allocations = record.Allocations
		existing.SyncedAt = record.SyncedAt
		f.baskts[record.BasktID] = existing
		return nil
	}
	f.baskts[record.BasktID] = record
	return nil
}

func (f *fakeMeta) FindOrderByPDA(_ context.Context, orderPDA string) (metastore.OrderRecord, error) {
	if f.failWith != nil {
		return metastore.OrderRecord{}, f.failWith
	}
	record, found := f.orders[orderPDA]
	if !found {
		return metastore.OrderRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) ListOrdersByOwner(_ context.Context, owner string) ([]metastore.OrderRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.OrderRecord
	for _, record := range f.orders {
		if record.Owner == owner {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) ListOrdersByBaskt(_ context.Context, basktID string) ([]metastore.OrderRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.OrderRecord
	for _, record := range f.orders {
		if record.BasktID == basktID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) FindPositionByPDA(_ context.Context, positionPDA string) (metastore.PositionRecord, error) {
	if f.failWith != nil {
		return metastore.PositionRecord{}, f.failWith
	}
	record, found := f.positions[positionPDA]
	if !found {
		return metastore.PositionRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) ListPositionsByOwner(_ context.Context, owner string) ([]metastore.PositionRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.PositionRecord
	for _, record := range f.positions {
		if record.Owner == owner {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) ListPositionsByBaskt(_ context.Context, basktID string) ([]metastore.PositionRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.PositionRecord
	for _, record := range f.positions {
		if record.BasktID == basktID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) ListPositions(_ context.Context) ([]metastore.PositionRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]metastore.PositionRecord, 0, len(f.positions))
	for _, record := range f.positions {
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeMeta) AppendPartialClose(_ context.Context, positionPDA string, settlement metastore.SettlementRecord, remainingSize, remainingCollateral *big.Int, status string) error {
	if f.failWith != nil {
		return f.failWith
	}
	record, found := f.positions[positionPDA]
	if !found {
		return metastore.ErrNotFound
	}
	record.PartialCloses = append(record.PartialCloses, settlement)
	record.RemainingSize = remainingSize
	record.RemainingCollateral = remainingCollateral
	record.Status = status
	f.positions[positionPDA] = record
	return nil
}

func (f *fakeMeta) InsertFeeEvent(_ context.Context, record metastore.FeeEventRecord) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	if record.ID == "" {
		record.ID = "fee-event"
	}
	f.feeEvents = append(f.feeEvents, record)
	return record.ID, nil
}

func (f *fakeMeta) ListFeeEventsSince(_ context.Context, since time.Time) ([]metastore.FeeEventRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.FeeEventRecord
	for _, record := range f.feeEvents {
		if !record.Timestamp.Before(since) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) SumFeesToBlpSince(_ context.Context, since time.Time) (*big.Int, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	total := new(big.Int)
	for _, record := range f.feeEvents {
		if !record.Timestamp.Before(since) && record.FeeToBlp != nil {
			total.Add(total, record.FeeToBlp)
		}
	}
	return total, nil
}

func (f *fakeMeta) LifetimeFeeTotals(_ context.Context) ([]metastore.FeeTotalsByType, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	byType := make(map[string]*metastore.FeeTotalsByType)
	for _, record := range f.feeEvents {
		totals, found := byType[record.EventType]
		if !found {
			totals = &metastore.FeeTotalsByType{
				EventType:     record.EventType,
				FeeToTreasury: new(big.Int),
				FeeToBlp:      new(big.Int),
				FeeTotal:      new(big.Int),
			}
			byType[record.EventType] = totals
		}
		totals.Count++
		totals.FeeToTreasury.Add(totals.FeeToTreasury, bigOrZero(record.FeeToTreasury))
		totals.FeeToBlp.Add(totals.FeeToBlp, bigOrZero(record.FeeToBlp))
		totals.FeeTotal.Add(totals.FeeTotal, bigOrZero(record.FeeTotal))
	}
	out := make([]metastore.FeeTotalsByType, 0, len(byType))
	for _, totals := range byType {
		out = append(out, *totals)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out, nil
}

func (f *fakeMeta) FindPool(_ context.Context, poolKey string) (metastore.PoolRecord, error) {
	if f.failWith != nil {
		return metastore.PoolRecord{}, f.failWith
	}
	record, found := f.pools[poolKey]
	if !found {
		return metastore.PoolRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) UpsertPool(_ context.Context, record metastore.PoolRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.pools[record.PoolKey] = record
	return nil
}

func (f *fakeMeta) InsertPoolActivity(_ context.Context, record metastore.PoolActivityRecord) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	if record.ID == "" {
		record.ID = "activity"
	}
	f.activity = append(f.activity, record)
	return record.ID, nil
}

func (f *fakeMeta) ListPoolActivityByProvider(_ context.Context, provider string) ([]metastore.PoolActivityRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []metastore.PoolActivityRecord
	for _, record := range f.activity {
		if record.Provider == provider {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeMeta) FindWithdrawalByRequestID(_ context.Context, requestID uint64) (metastore.WithdrawalRequestRecord, error) {
	if f.failWith != nil {
		return metastore.WithdrawalRequestRecord{}, f.failWith
	}
	record, found := f.withdrawals[requestID]
	if !found {
		return metastore.WithdrawalRequestRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) ListWithdrawals(_ context.Context) ([]metastore.WithdrawalRequestRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]metastore.WithdrawalRequestRecord, 0, len(f.withdrawals))
	for _, record := range f.withdrawals {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

func (f *fakeMeta) UpsertWithdrawal(_ context.Context, record metastore.WithdrawalRequestRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	existing, found := f.withdrawals[record.RequestID]
	if found {
		record.ProcessingHistory = existing.ProcessingHistory
	}
	f.withdrawals[record.RequestID] = record
	return nil
}

func (f *fakeMeta) AppendWithdrawalProcessing(_ context.Context, requestID uint64, entry metastore.ProcessingEntry, remainingLp *big.Int, status string) error {
	if f.failWith != nil {
		return f.failWith
	}
	record, found := f.withdrawals[requestID]
	if !found {
		return metastore.ErrNotFound
	}
	record.ProcessingHistory = append(record.ProcessingHistory, entry)
	record.RemainingLp = remainingLp
	record.Status = status
	f.withdrawals[requestID] = record
	return nil
}

func (f *fakeMeta) FindWallet(_ context.Context, address string) (metastore.WalletRecord, error) {
	if f.failWith != nil {
		return metastore.WalletRecord{}, f.failWith
	}
	record, found := f.wallets[address]
	if !found {
		return metastore.WalletRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) CreateWallet(_ context.Context, record metastore.WalletRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.wallets[record.Address] = record
	return nil
}

func (f *fakeMeta) FindAccessCode(_ context.Context, code string) (metastore.AccessCodeRecord, error) {
	if f.failWith != nil {
		return metastore.AccessCodeRecord{}, f.failWith
	}
	record, found := f.accessCodes[code]
	if !found {
		return metastore.AccessCodeRecord{}, metastore.ErrNotFound
	}
	return record, nil
}

func (f *fakeMeta) RedeemAccessCode(_ context.Context, code string) error {
	if f.failWith != nil {
		return f.failWith
	}
	record, found := f.accessCodes[code]
	if !found || record.Uses >= record.MaxUses {
		return metastore.ErrNotFound
	}
	record.Uses++
	f.accessCodes[code] = record
	return nil
}

// fakePrices serves samples from sorted in-memory series, applying the same
// nearest-before semantics as the real store.
type fakePrices struct {
	failWith error
	samples  map[string][]pricestore.PricePoint
	navs     map[string][]pricestore.PricePoint
	navSink  map[string][]pricestore.PricePoint
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		samples: make(map[string][]pricestore.PricePoint),
		navs:    make(map[string][]pricestore.PricePoint),
		navSink: make(map[string][]pricestore.PricePoint),
	}
}

func (f *fakePrices) addSample(address string, ts time.Time, price string) {
	f.samples[address] = append(f.samples[address], pricestore.PricePoint{Ts: ts, Price: decimal.RequireFromString(price)})
	sortSeries(f.samples[address])
}

func (f *fakePrices) addNav(basktID string, ts time.Time, nav string) {
	f.navs[basktID] = append(f.navs[basktID], pricestore.PricePoint{Ts: ts, Price: decimal.RequireFromString(nav)})
	sortSeries(f.navs[basktID])
}

func sortSeries(series []pricestore.PricePoint) {
	sort.Slice(series, func(i, j int) bool { return series[i].Ts.Before(series[j].Ts) })
}

func latestOf(series []pricestore.PricePoint) (pricestore.PricePoint, error) {
	if len(series) == 0 {
		return pricestore.PricePoint{}, pricestore.ErrNoSample
	}
	return series[len(series)-1], nil
}

func atOrBefore(series []pricestore.PricePoint, bound time.Time) (pricestore.PricePoint, error) {
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].Ts.After(bound) {
			return series[i], nil
		}
	}
	return pricestore.PricePoint{}, pricestore.ErrNoSample
}

func oldestOf(series []pricestore.PricePoint) (pricestore.PricePoint, error) {
	if len(series) == 0 {
		return pricestore.PricePoint{}, pricestore.ErrNoSample
	}
	return series[0], nil
}

func (f *fakePrices) LatestPrice(_ context.Context, assetAddress string) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return latestOf(f.samples[assetAddress])
}

func (f *fakePrices) PriceAtOrBefore(_ context.Context, assetAddress string, bound time.Time) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return atOrBefore(f.samples[assetAddress], bound)
}

func (f *fakePrices) OldestPrice(_ context.Context, assetAddress string) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return oldestOf(f.samples[assetAddress])
}

func (f *fakePrices) PriceRange(_ context.Context, assetAddress string, from, to time.Time) ([]pricestore.PricePoint, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []pricestore.PricePoint
	for _, point := range f.samples[assetAddress] {
		if !point.Ts.Before(from) && !point.Ts.After(to) {
			out = append(out, point)
		}
	}
	return out, nil
}

func (f *fakePrices) BatchWindowPrices(_ context.Context, assetAddresses []string, now time.Time) (map[string]pricestore.WindowRefs, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make(map[string]pricestore.WindowRefs, len(assetAddresses))
	for _, address := range assetAddresses {
		series := f.samples[address]
		var refs pricestore.WindowRefs
		if latest, err := latestOf(series); err == nil {
			point := latest
			refs.Current = &point
		}
		bounds := []struct {
			offset time.Duration
			target **pricestore.PricePoint
		}{
			{24 * time.Hour, &refs.Day},
			{7 * 24 * time.Hour, &refs.Week},
			{30 * 24 * time.Hour, &refs.Month},
			{365 * 24 * time.Hour, &refs.Year},
		}
		for _, b := range bounds {
			if sample, err := atOrBefore(series, now.Add(-b.offset)); err == nil {
				point := sample
				*b.target = &point
			}
		}
		out[address] = refs
	}
	return out, nil
}

func (f *fakePrices) RecordNav(_ context.Context, basktID string, ts time.Time, nav decimal.Decimal) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.navSink[basktID] = append(f.navSink[basktID], pricestore.PricePoint{Ts: ts, Price: nav})
	return nil
}

func (f *fakePrices) LatestNav(_ context.Context, basktID string) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return latestOf(f.navs[basktID])
}

func (f *fakePrices) NavAtOrBefore(_ context.Context, basktID string, bound time.Time) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return atOrBefore(f.navs[basktID], bound)
}

func (f *fakePrices) OldestNav(_ context.Context, basktID string) (pricestore.PricePoint, error) {
	if f.failWith != nil {
		return pricestore.PricePoint{}, f.failWith
	}
	return oldestOf(f.navs[basktID])
}

func (f *fakePrices) NavRange(_ context.Context, basktID string, from, to time.Time) ([]pricestore.PricePoint, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []pricestore.PricePoint
	for _, point := range f.navs[basktID] {
		if !point.Ts.Before(from) && !point.Ts.After(to) {
			out = append(out, point)
		}
	}
	return out, nil
}

// fakeLedger holds parsed accounts keyed the way the RPC client returns them.
type fakeLedger struct {
	failWith error

	assets    []onchain.KeyedAsset
	baskts    map[string]*onchain.BasktAccount
	orders    []onchain.KeyedOrder
	positions []onchain.KeyedPosition
	pool      *onchain.LiquidityPoolAccount
	requests  map[uint64]*onchain.WithdrawRequestAccount
	poolKey   string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		baskts:   make(map[string]*onchain.BasktAccount),
		requests: make(map[uint64]*onchain.WithdrawRequestAccount),
		poolKey:  pubkey(0xEE).String(),
	}
}

func (f *fakeLedger) AssetByAddress(_ context.Context, address string) (*onchain.AssetAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, item := range f.assets {
		if item.Pubkey.String() == address {
			return item.Account, nil
		}
	}
	return nil, onchain.ErrAccountNotFound
}

func (f *fakeLedger) Assets(_ context.Context) ([]onchain.KeyedAsset, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.assets, nil
}

func (f *fakeLedger) BasktByID(_ context.Context, basktID string) (*onchain.BasktAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	account, found := f.baskts[basktID]
	if !found {
		return nil, onchain.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeLedger) Baskts(_ context.Context) ([]onchain.KeyedBaskt, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	keys := make([]string, 0, len(f.baskts))
	for key := range f.baskts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]onchain.KeyedBaskt, 0, len(keys))
	for _, key := range keys {
		out = append(out, onchain.KeyedBaskt{Pubkey: solana.MustPublicKeyFromBase58(key), Account: f.baskts[key]})
	}
	return out, nil
}

func (f *fakeLedger) OrderByPDA(_ context.Context, orderPDA string) (*onchain.OrderAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, item := range f.orders {
		if item.Pubkey.String() == orderPDA {
			return item.Account, nil
		}
	}
	return nil, onchain.ErrAccountNotFound
}

func (f *fakeLedger) Orders(_ context.Context) ([]onchain.KeyedOrder, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.orders, nil
}

func (f *fakeLedger) PositionByPDA(_ context.Context, positionPDA string) (*onchain.PositionAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, item := range f.positions {
		if item.Pubkey.String() == positionPDA {
			return item.Account, nil
		}
	}
	return nil, onchain.ErrAccountNotFound
}

func (f *fakeLedger) Positions(_ context.Context) ([]onchain.KeyedPosition, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.positions, nil
}

func (f *fakeLedger) Pool(_ context.Context) (*onchain.LiquidityPoolAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.pool == nil {
		return nil, onchain.ErrAccountNotFound
	}
	return f.pool, nil
}

func (f *fakeLedger) PoolAddress() (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.poolKey, nil
}

func (f *fakeLedger) WithdrawRequestAt(_ context.Context, index uint64) (*onchain.WithdrawRequestAccount, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	account, found := f.requests[index]
	if !found {
		return nil, onchain.ErrAccountNotFound
	}
	return account, nil
}

// pubkey builds a deterministic public key from a one-byte tag.
func pubkey(tag byte) solana.PublicKey {
	var raw [32]byte
	raw[0] = tag
	raw[31] = tag
	return solana.PublicKeyFromBytes(raw[:])
}

type testEnv struct {
	meta   *fakeMeta
	prices *fakePrices
	ledger *fakeLedger
	q      *Querier
	now    time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		meta:   newFakeMeta(),
		prices: newFakePrices(),
		ledger: newFakeLedger(),
		now:    time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.q = New(env.meta, env.prices, env.ledger, logger)
	env.q.now = func() time.Time { return env.now }
	return env
}

func big6(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}
