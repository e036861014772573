package onchain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account discriminators follow the anchor convention:
// sha256("account:<Name>")[0:8] prefixes every program account.
var (
	Account_Asset           = accountDiscriminator("Asset")
	Account_Baskt           = accountDiscriminator("Baskt")
	Account_Order           = accountDiscriminator("Order")
	Account_Position        = accountDiscriminator("Position")
	Account_LiquidityPool   = accountDiscriminator("LiquidityPool")
	Account_WithdrawRequest = accountDiscriminator("WithdrawRequest")
)

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type BasktStatus bin.BorshEnum

const (
	BasktStatus_Pending BasktStatus = iota
	BasktStatus_Active
	BasktStatus_Decommissioning
	BasktStatus_Closed
)

func (s BasktStatus) String() string {
	switch s {
	case BasktStatus_Pending:
		return "Pending"
	case BasktStatus_Active:
		return "Active"
	case BasktStatus_Decommissioning:
		return "Decommissioning"
	case BasktStatus_Closed:
		return "Closed"
	default:
		return fmt.Sprintf("BasktStatus(%d)", uint8(s))
	}
}

type OrderStatus bin.BorshEnum

const (
	OrderStatus_Pending OrderStatus = iota
	OrderStatus_Filled
	OrderStatus_Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatus_Pending:
		return "PENDING"
	case OrderStatus_Filled:
		return "FILLED"
	case OrderStatus_Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
}

type OrderAction bin.BorshEnum

const (
	OrderAction_Open OrderAction = iota
	OrderAction_Close
)

func (a OrderAction) String() string {
	switch a {
	case OrderAction_Open:
		return "Open"
	case OrderAction_Close:
		return "Close"
	default:
		return fmt.Sprintf("OrderAction(%d)", uint8(a))
	}
}

type OrderType bin.BorshEnum

const (
	OrderType_Market OrderType = iota
	OrderType_Limit
)

func (t OrderType) String() string {
	switch t {
	case OrderType_Market:
		return "Market"
	case OrderType_Limit:
		return "Limit"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

type PositionStatus bin.BorshEnum

const (
	PositionStatus_Open PositionStatus = iota
	PositionStatus_Closed
	PositionStatus_Liquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatus_Open:
		return "OPEN"
	case PositionStatus_Closed:
		return "CLOSED"
	case PositionStatus_Liquidated:
		return "LIQUIDATED"
	default:
		return fmt.Sprintf("PositionStatus(%d)", uint8(s))
	}
}

// AssetAccount is the on-chain listing record for a tradable asset.
// Prices are not stored on the asset account; they come from the price store.
type AssetAccount struct {
	Ticker      [16]uint8
	Authority   solana.PublicKey
	PriceOracle solana.PublicKey
	MaxLeverage uint64
	IsActive    bool
}

// BasktAssetConfig is one allocation row inside a baskt account.
// Weight is in basis points; BaselinePrice is 1e6-scaled USD.
type BasktAssetConfig struct {
	AssetAddress  solana.PublicKey
	IsLong        bool
	WeightBps     uint64
	BaselinePrice uint64
}

type BasktAccount struct {
	Creator         solana.PublicKey
	Status          BasktStatus
	BaselineNav     uint64
	LastRebalanceTs int64
	CurrentAssets   []BasktAssetConfig
}

type OrderAccount struct {
	Owner      solana.PublicKey
	Baskt      solana.PublicKey
	Action     OrderAction
	OrderType  OrderType
	Size       uint64
	Collateral uint64
	LimitPrice uint64
	IsLong     bool
	Status     OrderStatus
	CreatedAt  int64
}

type PositionAccount struct {
	Owner               solana.PublicKey
	Baskt               solana.PublicKey
	EntryPrice          uint64
	Size                uint64
	RemainingSize       uint64
	Collateral          uint64
	RemainingCollateral uint64
	IsLong              bool
	Status              PositionStatus
	OpenedAt            int64
	LastUpdatedAt       int64
}

type LiquidityPoolAccount struct {
	Authority         solana.PublicKey
	LpMint            solana.PublicKey
	TotalLiquidity    uint64
	TotalShares       uint64
	FeeBps            uint64
	WithdrawQueueTail uint64
	WithdrawQueueHead uint64
}

type WithdrawRequestAccount struct {
	RequestId   uint64
	Provider    solana.PublicKey
	LpAmount    uint64
	ProcessedLp uint64
	CreatedAt   int64
}

func ParseAccount_Asset(data []byte) (*AssetAccount, error) {
	out := new(AssetAccount)
	if err := parseAccount(data, Account_Asset, out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_Baskt(data []byte) (*BasktAccount, error) {
	out := new(BasktAccount)
	if err := parseAccount(data, Account_Baskt, out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_Order(data []byte) (*OrderAccount, error) {
	out := new(OrderAccount)
	if err := parseAccount(data, Account_Order, out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_Position(data []byte) (*PositionAccount, error) {
	out := new(PositionAccount)
	if err := parseAccount(data, Account_Position, out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_LiquidityPool(data []byte) (*LiquidityPoolAccount, error) {
	out := new(LiquidityPoolAccount)
	if err := parseAccount(data, Account_LiquidityPool, out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_WithdrawRequest(data []byte) (*WithdrawRequestAccount, error) {
	out := new(WithdrawRequestAccount)
	if err := parseAccount(data, Account_WithdrawRequest, out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseAccount(data []byte, discriminator [8]byte, out any) error {
	if len(data) < 8 {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return fmt.Errorf("account discriminator mismatch: got %x, want %x", data[:8], discriminator)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(out); err != nil {
		return fmt.Errorf("decode account payload: %w", err)
	}
	return nil
}

// TickerString trims the fixed-width on-chain ticker to its string form.
func TickerString(ticker [16]uint8) string {
	index := bytes.IndexByte(ticker[:], 0)
	if index < 0 {
		index = len(ticker)
	}
	return string(ticker[:index])
}
