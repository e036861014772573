package querier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basktfi/backend/internal/metastore"
)

func TestRegisterWalletRedeemsAccessCode(t *testing.T) {
	env := newTestEnv()
	env.meta.accessCodes["beta-1"] = metastore.AccessCodeRecord{Code: "beta-1", MaxUses: 2}
	address := pubkey(0x81).String()

	resp := env.q.RegisterWallet(context.Background(), address, "beta-1")
	require.True(t, resp.Success)
	require.Equal(t, int64(1), env.meta.accessCodes["beta-1"].Uses)
	require.Contains(t, env.meta.wallets, address)
}

func TestRegisterWalletExhaustedCodeFails(t *testing.T) {
	env := newTestEnv()
	env.meta.accessCodes["beta-2"] = metastore.AccessCodeRecord{Code: "beta-2", MaxUses: 1, Uses: 1}

	resp := env.q.RegisterWallet(context.Background(), pubkey(0x82).String(), "beta-2")
	require.False(t, resp.Success)
	require.Empty(t, env.meta.wallets)
}

func TestRegisterWalletWithoutCode(t *testing.T) {
	env := newTestEnv()
	address := pubkey(0x83).String()

	resp := env.q.RegisterWallet(context.Background(), address, "")
	require.True(t, resp.Success)

	lookup := env.q.GetWallet(context.Background(), address)
	require.True(t, lookup.Success)
	require.Equal(t, address, lookup.Data.Address)
}

func TestGetWalletUnknownIsNotFound(t *testing.T) {
	env := newTestEnv()

	resp := env.q.GetWallet(context.Background(), pubkey(0x84).String())
	require.False(t, resp.Success)
	require.Equal(t, CodeNotFound, resp.Error)
}
