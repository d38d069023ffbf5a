// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package alkanes_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/alkanes"
)

func ptr(v uint32) *uint32 { return &v }

func TestProtostone(t *testing.T) {
	t.Run("script round trip", func(t *testing.T) {
		stone := &alkanes.Protostone{
			Calldata: alkanes.MintCalldata(alkanes.AlkaneID{Block: 2, Tx: 17}),
			Pointer:  ptr(1),
		}

		script, err := stone.IntoScript()
		require.NoError(t, err)
		require.True(t, alkanes.IsPossibleProtostone(script))
		require.Equal(t, byte(txscript.OP_RETURN), script[0])
		require.Equal(t, byte(txscript.OP_13), script[1])

		parsed, err := alkanes.ParseProtostone(script)
		require.NoError(t, err)
		require.True(t, stone.Equal(parsed))
	})

	t.Run("round trip with edicts", func(t *testing.T) {
		stone := &alkanes.Protostone{
			Calldata: alkanes.MergeTransferCalldata(alkanes.AlkaneID{Block: 2, Tx: 17}),
			Edicts: []alkanes.Edict{
				{ID: alkanes.AlkaneID{Block: 2, Tx: 17}, Amount: big.NewInt(100), Output: 1},
				{ID: alkanes.AlkaneID{Block: 2, Tx: 33}, Amount: big.NewInt(250), Output: 2},
			},
			Pointer: ptr(0),
		}

		script, err := stone.IntoScript()
		require.NoError(t, err)

		parsed, err := alkanes.ParseProtostone(script)
		require.NoError(t, err)
		require.True(t, stone.Equal(parsed))
	})

	t.Run("large payload is chunked", func(t *testing.T) {
		// enough calldata to exceed a single 75-byte push.
		calldata := make([]*big.Int, 0, 64)
		for i := 0; i < 64; i++ {
			calldata = append(calldata, big.NewInt(int64(i+1)))
		}

		stone := &alkanes.Protostone{Calldata: calldata}
		script, err := stone.IntoScript()
		require.NoError(t, err)

		// second push opcode sits right after the first 75-byte chunk.
		require.Equal(t, byte(75), script[2])

		parsed, err := alkanes.ParseProtostone(script)
		require.NoError(t, err)
		require.True(t, stone.Equal(parsed))
	})

	t.Run("empty stone has no script form", func(t *testing.T) {
		_, err := (&alkanes.Protostone{}).IntoScript()
		require.ErrorIs(t, err, alkanes.ErrMalformedPayload)
	})

	t.Run("IsPossibleProtostone negatives", func(t *testing.T) {
		tests := [][]byte{
			nil,
			{txscript.OP_RETURN},
			{txscript.OP_RETURN, txscript.OP_13},
			{txscript.OP_RETURN, txscript.OP_14, 0x01, 0xff},
			{txscript.OP_13, txscript.OP_RETURN, 0x01, 0xff},
			{txscript.OP_RETURN, txscript.OP_13, 0x00, 0xff},
		}
		for _, script := range tests {
			require.False(t, alkanes.IsPossibleProtostone(script))
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		// a lone calldata tag with no value.
		script := []byte{txscript.OP_RETURN, txscript.OP_13, 0x01, 83}
		_, err := alkanes.ParseProtostone(script)
		require.ErrorIs(t, err, alkanes.ErrTruncated)
	})

	t.Run("double pointer", func(t *testing.T) {
		script := []byte{txscript.OP_RETURN, txscript.OP_13, 0x04, 22, 1, 22, 2}
		_, err := alkanes.ParseProtostone(script)
		require.ErrorIs(t, err, alkanes.ErrMalformedPayload)
	})
}

func TestCalldata(t *testing.T) {
	id := alkanes.AlkaneID{Block: 2, Tx: 17}

	require.Equal(t, []*big.Int{big.NewInt(2), big.NewInt(17), big.NewInt(78)}, alkanes.MintCalldata(id))
	require.Equal(t,
		[]*big.Int{big.NewInt(2), big.NewInt(17), big.NewInt(69), big.NewInt(3)},
		alkanes.AuthMintCalldata(id, big.NewInt(3)))
	require.Equal(t, []*big.Int{big.NewInt(2), big.NewInt(17), big.NewInt(77)}, alkanes.MergeTransferCalldata(id))
}
