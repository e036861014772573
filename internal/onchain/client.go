package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/basktfi/backend/internal/config"
)

// ErrAccountNotFound is returned when an address has no account on the
// ledger at the configured commitment.
var ErrAccountNotFound = errors.New("onchain: account not found")

// Client is a read-only view over the program's accounts. It never signs
// or sends transactions.
type Client struct {
	rpc        *rpc.Client
	programID  solana.PublicKey
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

func NewClient(cfg config.LedgerConfig, logger *slog.Logger) *Client {
	return &Client{
		rpc:        rpc.New(cfg.RPCURL),
		programID:  cfg.ProgramID,
		commitment: cfg.Commitment,
		logger:     logger,
	}
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// PoolAddress returns the derived liquidity pool PDA in base58 form.
func (c *Client) PoolAddress() (string, error) {
	key, err := DeriveLiquidityPoolPDA(c.programID)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// KeyedAsset pairs a decoded asset account with its on-chain address.
type KeyedAsset struct {
	Pubkey  solana.PublicKey
	Account *AssetAccount
}

type KeyedBaskt struct {
	Pubkey  solana.PublicKey
	Account *BasktAccount
}

type KeyedOrder struct {
	Pubkey  solana.PublicKey
	Account *OrderAccount
}

type KeyedPosition struct {
	Pubkey  solana.PublicKey
	Account *PositionAccount
}

func (c *Client) AssetByAddress(ctx context.Context, address string) (*AssetAccount, error) {
	data, err := c.fetchAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	return ParseAccount_Asset(data)
}

func (c *Client) Assets(ctx context.Context) ([]KeyedAsset, error) {
	items, err := c.scanProgramAccounts(ctx, "asset", Account_Asset)
	if err != nil {
		return nil, err
	}
	assets := make([]KeyedAsset, 0, len(items))
	for _, item := range items {
		account, err := ParseAccount_Asset(item.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warn("failed to parse asset account", "pubkey", item.Pubkey, "err", err)
			continue
		}
		assets = append(assets, KeyedAsset{Pubkey: item.Pubkey, Account: account})
	}
	return assets, nil
}

func (c *Client) BasktByID(ctx context.Context, basktID string) (*BasktAccount, error) {
	data, err := c.fetchAccountData(ctx, basktID)
	if err != nil {
		return nil, err
	}
	return ParseAccount_Baskt(data)
}

func (c *Client) Baskts(ctx context.Context) ([]KeyedBaskt, error) {
	items, err := c.scanProgramAccounts(ctx, "baskt", Account_Baskt)
	if err != nil {
		return nil, err
	}
	baskts := make([]KeyedBaskt, 0, len(items))
	for _, item := range items {
		account, err := ParseAccount_Baskt(item.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warn("failed to parse baskt account", "pubkey", item.Pubkey, "err", err)
			continue
		}
		baskts = append(baskts, KeyedBaskt{Pubkey: item.Pubkey, Account: account})
	}
	return baskts, nil
}

func (c *Client) OrderByPDA(ctx context.Context, orderPDA string) (*OrderAccount, error) {
	data, err := c.fetchAccountData(ctx, orderPDA)
	if err != nil {
		return nil, err
	}
	return ParseAccount_Order(data)
}

func (c *Client) Orders(ctx context.Context) ([]KeyedOrder, error) {
	items, err := c.scanProgramAccounts(ctx, "order", Account_Order)
	if err != nil {
		return nil, err
	}
	orders := make([]KeyedOrder, 0, len(items))
	for _, item := range items {
		account, err := ParseAccount_Order(item.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warn("failed to parse order account", "pubkey", item.Pubkey, "err", err)
			continue
		}
		orders = append(orders, KeyedOrder{Pubkey: item.Pubkey, Account: account})
	}
	return orders, nil
}

func (c *Client) PositionByPDA(ctx context.Context, positionPDA string) (*PositionAccount, error) {
	data, err := c.fetchAccountData(ctx, positionPDA)
	if err != nil {
		return nil, err
	}
	return ParseAccount_Position(data)
}

func (c *Client) Positions(ctx context.Context) ([]KeyedPosition, error) {
	items, err := c.scanProgramAccounts(ctx, "position", Account_Position)
	if err != nil {
		return nil, err
	}
	positions := make([]KeyedPosition, 0, len(items))
	for _, item := range items {
		account, err := ParseAccount_Position(item.Account.Data.GetBinary())
		if err != nil {
			c.logger.Warn("failed to parse position account", "pubkey", item.Pubkey, "err", err)
			continue
		}
		positions = append(positions, KeyedPosition{Pubkey: item.Pubkey, Account: account})
	}
	return positions, nil
}

// Pool fetches the singleton liquidity pool account by derived PDA.
func (c *Client) Pool(ctx context.Context) (*LiquidityPoolAccount, error) {
	poolKey, err := DeriveLiquidityPoolPDA(c.programID)
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccountDataByKey(ctx, poolKey)
	if err != nil {
		return nil, err
	}
	return ParseAccount_LiquidityPool(data)
}

// WithdrawRequestAt derives the request PDA for a queue sequence number and
// fetches it. Returns ErrAccountNotFound when the slot was never created or
// was already closed.
func (c *Client) WithdrawRequestAt(ctx context.Context, index uint64) (*WithdrawRequestAccount, error) {
	poolKey, err := DeriveLiquidityPoolPDA(c.programID)
	if err != nil {
		return nil, err
	}
	requestKey, err := DeriveWithdrawRequestPDA(c.programID, poolKey, index)
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccountDataByKey(ctx, requestKey)
	if err != nil {
		return nil, err
	}
	return ParseAccount_WithdrawRequest(data)
}

func (c *Client) fetchAccountData(ctx context.Context, address string) ([]byte, error) {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid account address %q: %w", address, err)
	}
	return c.fetchAccountDataByKey(ctx, key)
}

func (c *Client) fetchAccountDataByKey(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	resp, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", key, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("fetch account %s: %w", key, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, fmt.Errorf("account %s: %w", key, ErrAccountNotFound)
	}
	return resp.Value.Data.GetBinary(), nil
}

func (c *Client) scanProgramAccounts(ctx context.Context, accountType string, discriminator [8]byte) ([]*rpc.KeyedAccount, error) {
	accounts, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(discriminator[:])}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s accounts for program %s: %w", accountType, c.programID, err)
	}

	items := make([]*rpc.KeyedAccount, 0, len(accounts))
	for _, item := range accounts {
		if item == nil || item.Account == nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
