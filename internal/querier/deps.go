package querier

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
)

// MetadataStore is the slice of the metadata gateway the queriers consume.
// Satisfied by *metastore.Store.
type MetadataStore interface {
	FindAssetByAddress(ctx context.Context, address string) (metastore.AssetRecord, error)
	FindAssetByTicker(ctx context.Context, ticker string) (metastore.AssetRecord, error)
	ListAssets(ctx context.Context) ([]metastore.AssetRecord, error)

	FindBasktByID(ctx context.Context, basktID string) (metastore.BasktRecord, error)
	ListBaskts(ctx context.Context) ([]metastore.BasktRecord, error)
	UpsertBasktSnapshot(ctx context.Context, record metastore.BasktRecord) error

	FindOrderByPDA(ctx context.Context, orderPDA string) (metastore.OrderRecord, error)
	ListOrdersByOwner(ctx context.Context, owner string) ([]metastore.OrderRecord, error)
	ListOrdersByBaskt(ctx context.Context, basktID string) ([]metastore.OrderRecord, error)

	FindPositionByPDA(ctx context.Context, positionPDA string) (metastore.PositionRecord, error)
	ListPositionsByOwner(ctx context.Context, owner string) ([]metastore.PositionRecord, error)
	ListPositionsByBaskt(ctx context.Context, basktID string) ([]metastore.PositionRecord, error)
	ListPositions(ctx context.Context) ([]metastore.PositionRecord, error)
	AppendPartialClose(ctx context.Context, positionPDA string, settlement metastore.SettlementRecord, remainingSize, remainingCollateral *big.Int, status string) error

	InsertFeeEvent(ctx context.Context, record metastore.FeeEventRecord) (string, error)
	ListFeeEventsSince(ctx context.Context, since time.Time) ([]metastore.FeeEventRecord, error)
	SumFeesToBlpSince(ctx context.Context, since time.Time) (*big.Int, error)
	LifetimeFeeTotals(ctx context.Context) ([]metastore.FeeTotalsByType, error)

	FindPool(ctx context.Context, poolKey string) (metastore.PoolRecord, error)
	UpsertPool(ctx context.Context, record metastore.PoolRecord) error
	InsertPoolActivity(ctx context.Context, record metastore.PoolActivityRecord) (string, error)
	ListPoolActivityByProvider(ctx context.Context, provider string) ([]metastore.PoolActivityRecord, error)

	FindWithdrawalByRequestID(ctx context.Context, requestID uint64) (metastore.WithdrawalRequestRecord, error)
	ListWithdrawals(ctx context.Context) ([]metastore.WithdrawalRequestRecord, error)
	UpsertWithdrawal(ctx context.Context, record metastore.WithdrawalRequestRecord) error
	AppendWithdrawalProcessing(ctx context.Context, requestID uint64, entry metastore.ProcessingEntry, remainingLp *big.Int, status string) error

	FindWallet(ctx context.Context, address string) (metastore.WalletRecord, error)
	CreateWallet(ctx context.Context, record metastore.WalletRecord) error
	FindAccessCode(ctx context.Context, code string) (metastore.AccessCodeRecord, error)
	RedeemAccessCode(ctx context.Context, code string) error
}

// PriceStore is the time-series reader surface. Satisfied by
// *pricestore.Store.
type PriceStore interface {
	LatestPrice(ctx context.Context, assetAddress string) (pricestore.PricePoint, error)
	PriceAtOrBefore(ctx context.Context, assetAddress string, bound time.Time) (pricestore.PricePoint, error)
	OldestPrice(ctx context.Context, assetAddress string) (pricestore.PricePoint, error)
	PriceRange(ctx context.Context, assetAddress string, from, to time.Time) ([]pricestore.PricePoint, error)
	BatchWindowPrices(ctx context.Context, assetAddresses []string, now time.Time) (map[string]pricestore.WindowRefs, error)

	RecordNav(ctx context.Context, basktID string, ts time.Time, nav decimal.Decimal) error
	LatestNav(ctx context.Context, basktID string) (pricestore.PricePoint, error)
	NavAtOrBefore(ctx context.Context, basktID string, bound time.Time) (pricestore.PricePoint, error)
	OldestNav(ctx context.Context, basktID string) (pricestore.PricePoint, error)
	NavRange(ctx context.Context, basktID string, from, to time.Time) ([]pricestore.PricePoint, error)
}

// Ledger is the read-only blockchain surface. Satisfied by *onchain.Client.
type Ledger interface {
	AssetByAddress(ctx context.Context, address string) (*onchain.AssetAccount, error)
	Assets(ctx context.Context) ([]onchain.KeyedAsset, error)
	BasktByID(ctx context.Context, basktID string) (*onchain.BasktAccount, error)
	Baskts(ctx context.Context) ([]onchain.KeyedBaskt, error)
	OrderByPDA(ctx context.Context, orderPDA string) (*onchain.OrderAccount, error)
	Orders(ctx context.Context) ([]onchain.KeyedOrder, error)
	PositionByPDA(ctx context.Context, positionPDA string) (*onchain.PositionAccount, error)
	Positions(ctx context.Context) ([]onchain.KeyedPosition, error)
	Pool(ctx context.Context) (*onchain.LiquidityPoolAccount, error)
	PoolAddress() (string, error)
	WithdrawRequestAt(ctx context.Context, index uint64) (*onchain.WithdrawRequestAccount, error)
}
