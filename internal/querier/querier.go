package querier

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// usdcScale is the fixed-point scale shared by on-chain prices, sizes and
// fee amounts (USDC, 6 decimal places).
var usdcScale = big.NewInt(1_000_000)

var usdcScaleDec = decimal.NewFromInt(1_000_000)

// Querier merges the metadata store, the ledger and the time-series store
// into consumer-facing entities. It holds no state beyond the three handles;
// every read is performed on demand and merged without locks.
type Querier struct {
	meta   MetadataStore
	prices PriceStore
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

func New(meta MetadataStore, prices PriceStore, ledger Ledger, logger *slog.Logger) *Querier {
	return &Querier{
		meta:   meta,
		prices: prices,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// decimalFromScaled converts a 1e6-scaled integer amount to its USD decimal.
func decimalFromScaled(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -6)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
