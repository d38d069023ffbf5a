// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/alkanes"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
	"github.com/BoostyLabs/alkamint/mint"
)

func TestEstimateNormalOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 25)

	quote, err := env.service.EstimateNormalOrder(ctx, env.mergeParams(3, 2, 4))
	require.NoError(t, err)

	require.Equal(t, fees.Fee(float64(quote.ItemSize), 4)+env.cfg.Postage, quote.SeedPerMint)
	require.Equal(t, 3*fees.Fee(float64(quote.ItemSize), 2), quote.NetworkFee)
	require.Equal(t, env.cfg.Postage*3, quote.Postage)
	// every transaction is its own batch in the fee schedule.
	require.Equal(t, env.cfg.ServiceFee.ForOrder(3, 3), quote.ServiceFee)
	require.Equal(t, quote.NetworkFee+quote.Prepaid+quote.Postage+quote.ServiceFee, quote.Total)

	_, err = env.service.EstimateNormalOrder(ctx, env.mergeParams(0, 1, 2))
	require.ErrorIs(t, err, mint.ErrInvalidParams)
}

func TestCreateNormalOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 25)

	// a wide feerate spread keeps the per-item prepaid margin above dust.
	order := env.createNormalOrder(t, 3, 2, 8)

	t.Run("goes straight to minting", func(t *testing.T) {
		require.Equal(t, mint.ModelNormal, order.Model)
		require.Equal(t, mint.StatusMinting, order.Status)
		require.Equal(t, 3, order.SubmittedAmount)
	})

	items, err := env.store.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	t.Run("each item spends its own funding seed", func(t *testing.T) {
		for i, item := range items {
			// every transaction is its own single-item batch.
			require.Equal(t, i, item.BatchIndex)
			require.Equal(t, 0, item.MintIndex)
			require.True(t,
				strings.HasPrefix(item.InputUtxo, order.PaymentHash+":"),
				"item %d does not spend the funding transaction", i)

			tx := decodeTx(t, item.RawTx)
			require.Len(t, tx.TxIn, 1)
			require.EqualValues(t, i, tx.TxIn[0].PreviousOutPoint.Index)
			require.Len(t, tx.TxIn[0].Witness, 2)
		}
	})

	t.Run("each item carries the mint call and postage", func(t *testing.T) {
		var change int64
		for _, item := range items {
			tx := decodeTx(t, item.RawTx)

			stone, err := alkanes.ParseProtostone(tx.TxOut[0].PkScript)
			require.NoError(t, err)
			require.Equal(t, alkanes.MintCalldata(alkanes.AlkaneID{Block: 2, Tx: 17}), stone.Calldata)
			require.EqualValues(t, 1, *stone.Pointer)

			require.Equal(t, addrScript(t, env.receiveAddr), tx.TxOut[1].PkScript)
			require.Equal(t, env.cfg.Postage, tx.TxOut[1].Value)

			// the prepaid margin returns to the payer per item.
			require.Len(t, tx.TxOut, 3)
			require.Equal(t, addrScript(t, env.payerAddr), tx.TxOut[2].PkScript)
			change += tx.TxOut[2].Value
		}

		require.Equal(t, order.Change, change)
	})

	t.Run("funding is pushed first, items in any order", func(t *testing.T) {
		pushes := env.caster.pushes()
		require.Len(t, pushes, 4)
		require.Equal(t, order.PaymentRawTx, pushes[0])
		for _, item := range items {
			require.Contains(t, pushes[1:], item.RawTx)
		}
	})

	t.Run("merge operations reject the normal model", func(t *testing.T) {
		err := env.service.AccelerateMergeOrder(ctx, order.ID, env.payerAddr, 3)
		require.ErrorIs(t, err, mint.ErrInvalidOrderState)
	})

	t.Run("recovery completes confirmed items", func(t *testing.T) {
		for _, item := range items {
			env.source.confirm(item.MintHash)
		}

		env.service.HandleMintingOrders(ctx)

		stored, err := env.store.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, mint.StatusCompleted, stored.Status)
		require.Equal(t, 3, stored.CompletedAmount)
	})
}

func TestCreateNormalOrderModelGuard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 25)

	preview, err := env.service.PreCreateMergeOrder(ctx, env.mergeParams(2, 1, 2))
	require.NoError(t, err)

	signed := env.signFunding(t, preview.Psbt)
	err = env.service.CreateNormalOrder(ctx, preview.Order.ID, env.payerAddr, signed)
	require.ErrorIs(t, err, mint.ErrInvalidOrderState)
}
