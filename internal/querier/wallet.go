package querier

import (
	"context"

	"github.com/basktfi/backend/internal/metastore"
)

// RegisterWallet records a wallet address, redeeming the access code first
// when one is supplied. Redemption and registration are separate writes;
// re-registering an already known wallet is a no-op.
func (q *Querier) RegisterWallet(ctx context.Context, address, accessCode string) Response[metastore.WalletRecord] {
	if accessCode != "" {
		if err := q.meta.RedeemAccessCode(ctx, accessCode); err != nil {
			q.logger.Warn("access code redemption failed", "code", accessCode, "err", err)
			return failErr[metastore.WalletRecord](srcMeta, err, "invalid or exhausted access code")
		}
	}
	record := metastore.WalletRecord{Address: address, AccessCode: accessCode}
	if err := q.meta.CreateWallet(ctx, record); err != nil {
		q.logger.Error("wallet registration failed", "address", address, "err", err)
		return failErr[metastore.WalletRecord](srcMeta, err, "failed to register wallet")
	}
	return ok(record)
}

// GetWallet looks up a registered wallet.
func (q *Querier) GetWallet(ctx context.Context, address string) Response[metastore.WalletRecord] {
	record, err := q.meta.FindWallet(ctx, address)
	if err != nil {
		q.logger.Warn("wallet lookup failed", "address", address, "err", err)
		return failErr[metastore.WalletRecord](srcMeta, err, "wallet not registered")
	}
	return ok(record)
}
