package onchain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

func u64LE(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

// DeriveLiquidityPoolPDA returns the singleton pool account address.
func DeriveLiquidityPoolPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("liquidity-pool")},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive liquidity pool PDA: %w", err)
	}
	return address, nil
}

// DeriveWithdrawRequestPDA returns the withdraw request account address for a
// queue sequence number. Requests are addressed by index, not by provider, so
// the queue can be walked without knowing who enqueued each entry.
func DeriveWithdrawRequestPDA(programID, pool solana.PublicKey, index uint64) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("withdraw-request"), pool.Bytes(), u64LE(index)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive withdraw request PDA for index %d: %w", index, err)
	}
	return address, nil
}

// DeriveBasktPDA returns the baskt account address for a creator-scoped id.
func DeriveBasktPDA(programID, creator solana.PublicKey, basktIndex uint64) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("baskt"), creator.Bytes(), u64LE(basktIndex)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive baskt PDA: %w", err)
	}
	return address, nil
}
