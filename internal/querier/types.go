package querier

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/basktfi/backend/internal/metastore"
)

// AssetLedgerInfo is the on-chain slice of a combined asset. All fields are
// zero-valued when the ledger has no record for the address.
type AssetLedgerInfo struct {
	Authority   string `json:"authority"`
	PriceOracle string `json:"priceOracle"`
	MaxLeverage uint64 `json:"maxLeverage"`
	IsActive    bool   `json:"isActive"`
}

// CombinedAsset joins metadata, the ledger account and the latest price.
// Weight is a percentage and only meaningful inside a baskt context;
// standalone lookups leave it zero.
type CombinedAsset struct {
	Ticker    string            `json:"ticker"`
	Address   string            `json:"address"`
	Name      string            `json:"name"`
	LogoURL   string            `json:"logo,omitempty"`
	Price     decimal.Decimal   `json:"price"`
	Change24h decimal.Decimal   `json:"change24h"`
	Ledger    *AssetLedgerInfo  `json:"ledger,omitempty"`
	Weight    decimal.Decimal   `json:"weight"`
	Config    map[string]string `json:"config,omitempty"`
	BasktIDs  []string          `json:"basktIds,omitempty"`
}

// PerformanceWindows holds trailing percentage changes per horizon.
type PerformanceWindows struct {
	Day   decimal.Decimal `json:"24h"`
	Week  decimal.Decimal `json:"7d"`
	Month decimal.Decimal `json:"30d"`
	Year  decimal.Decimal `json:"365d"`
}

// BasktAssetView is one resolved allocation inside a combined baskt.
type BasktAssetView struct {
	CombinedAsset
	IsLong        bool            `json:"isLong"`
	WeightBps     uint64          `json:"weightBps"`
	BaselinePrice decimal.Decimal `json:"baselinePrice"`
}

type CombinedBaskt struct {
	BasktID     string             `json:"basktId"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Creator     string             `json:"creator"`
	Status      string             `json:"status"`
	BaselineNav decimal.Decimal    `json:"baselineNav"`
	Nav         decimal.Decimal    `json:"nav"`
	Performance PerformanceWindows `json:"performance"`
	Assets      []BasktAssetView   `json:"assets"`
	SyncedAt    time.Time          `json:"syncedAt,omitempty"`
}

// CombinedOrder is the single record per order PDA. OnLedger reports whether
// the ledger contributed fields; when false the record is a metadata-only
// projection.
type CombinedOrder struct {
	OrderPDA   string    `json:"orderPda"`
	BasktID    string    `json:"basktId"`
	Owner      string    `json:"owner"`
	Status     string    `json:"status"`
	Action     string    `json:"action"`
	OrderType  string    `json:"orderType"`
	IsLong     bool      `json:"isLong"`
	Size       *big.Int  `json:"size"`
	Collateral *big.Int  `json:"collateral"`
	LimitPrice *big.Int  `json:"limitPrice"`
	UsdcSize   *big.Int  `json:"usdcSize"`
	OnLedger   bool      `json:"onLedger"`
	CreatedTx  string    `json:"createdTx,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	FilledTx   string    `json:"filledTx,omitempty"`
	FilledAt   time.Time `json:"filledAt,omitempty"`
	CanceledTx string    `json:"canceledTx,omitempty"`
	CanceledAt time.Time `json:"canceledAt,omitempty"`
}

type CombinedPosition struct {
	PositionPDA         string                       `json:"positionPda"`
	BasktID             string                       `json:"basktId"`
	Owner               string                       `json:"owner"`
	Status              string                       `json:"status"`
	IsLong              bool                         `json:"isLong"`
	EntryPrice          *big.Int                     `json:"entryPrice"`
	ExitPrice           *big.Int                     `json:"exitPrice"`
	Size                *big.Int                     `json:"size"`
	RemainingSize       *big.Int                     `json:"remainingSize"`
	Collateral          *big.Int                     `json:"collateral"`
	RemainingCollateral *big.Int                     `json:"remainingCollateral"`
	UsdcSize            *big.Int                     `json:"usdcSize"`
	LiquidationPrice    *big.Int                     `json:"liquidationPrice,omitempty"`
	PartialCloses       []metastore.SettlementRecord `json:"partialCloses"`
	OnLedger            bool                         `json:"onLedger"`
	OpenedAt            time.Time                    `json:"openedAt,omitempty"`
	ClosedAt            time.Time                    `json:"closedAt,omitempty"`
}

// LiquidityPoolView is the consumer-facing pool snapshot.
type LiquidityPoolView struct {
	PoolKey        string          `json:"poolKey"`
	LpMint         string          `json:"lpMint"`
	TotalLiquidity decimal.Decimal `json:"totalLiquidity"`
	TotalShares    decimal.Decimal `json:"totalShares"`
	FeeBps         uint64          `json:"feeBps"`
	QueueHead      uint64          `json:"queueHead"`
	QueueTail      uint64          `json:"queueTail"`
	SyncedAt       time.Time       `json:"syncedAt"`
}

// OpenInterestStats aggregates the remaining notional of open positions.
type OpenInterestStats struct {
	OpenInterest  decimal.Decimal `json:"openInterest"`
	PositionCount int             `json:"positionCount"`
}

// VolumeStats sums position notional opened inside a window.
type VolumeStats struct {
	Volume        decimal.Decimal `json:"volume"`
	PositionCount int             `json:"positionCount"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
}

// APRStats reports the liquidity provider yield estimate for a window.
type APRStats struct {
	APR            decimal.Decimal `json:"apr"`
	RawAPR         decimal.Decimal `json:"rawApr"`
	FeesToBlp      decimal.Decimal `json:"feesToBlp"`
	TotalLiquidity decimal.Decimal `json:"totalLiquidity"`
	WindowDays     int             `json:"windowDays"`
}
