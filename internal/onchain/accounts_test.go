package onchain

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func encodeAccount(t *testing.T, discriminator [8]byte, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(v))
	return append(discriminator[:], buf.Bytes()...)
}

func TestParseAccountOrderRoundTrip(t *testing.T) {
	in := OrderAccount{
		Owner:      solana.SystemProgramID,
		Baskt:      solana.SysVarClockPubkey,
		Action:     OrderAction_Open,
		OrderType:  OrderType_Limit,
		Collateral: 500_000_000,
		LimitPrice: 2_000_000,
		IsLong:     true,
		Status:     OrderStatus_Pending,
		CreatedAt:  1_760_000_000,
	}

	out, err := ParseAccount_Order(encodeAccount(t, Account_Order, in))
	require.NoError(t, err)
	require.Equal(t, in, *out)
}

func TestParseAccountBasktRoundTrip(t *testing.T) {
	in := BasktAccount{
		Creator:     solana.SystemProgramID,
		Status:      BasktStatus_Active,
		BaselineNav: 100_000_000,
		CurrentAssets: []BasktAssetConfig{
			{AssetAddress: solana.SysVarRentPubkey, IsLong: true, WeightBps: 7_000, BaselinePrice: 1_000_000},
			{AssetAddress: solana.SysVarClockPubkey, IsLong: false, WeightBps: 3_000, BaselinePrice: 2_000_000},
		},
	}

	out, err := ParseAccount_Baskt(encodeAccount(t, Account_Baskt, in))
	require.NoError(t, err)
	require.Equal(t, in, *out)
}

func TestParseAccountRejectsWrongDiscriminator(t *testing.T) {
	data := encodeAccount(t, Account_Position, OrderAccount{})

	_, err := ParseAccount_Order(data)
	require.ErrorContains(t, err, "discriminator mismatch")
}

func TestParseAccountRejectsShortData(t *testing.T) {
	_, err := ParseAccount_Asset([]byte{1, 2, 3})
	require.ErrorContains(t, err, "too short")
}

func TestAccountDiscriminatorsAreDistinct(t *testing.T) {
	all := [][8]byte{
		Account_Asset,
		Account_Baskt,
		Account_Order,
		Account_Position,
		Account_LiquidityPool,
		Account_WithdrawRequest,
	}
	seen := make(map[[8]byte]struct{}, len(all))
	for _, d := range all {
		_, dup := seen[d]
		require.False(t, dup, "duplicate discriminator %x", d)
		seen[d] = struct{}{}
	}
}

func TestTickerString(t *testing.T) {
	var padded [16]uint8
	copy(padded[:], "SOL")
	require.Equal(t, "SOL", TickerString(padded))

	var full [16]uint8
	copy(full[:], "ABCDEFGHIJKLMNOP")
	require.Equal(t, "ABCDEFGHIJKLMNOP", TickerString(full))

	var empty [16]uint8
	require.Equal(t, "", TickerString(empty))
}
