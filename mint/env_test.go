// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/signer"
	"github.com/BoostyLabs/alkamint/bitcoin/txbuilder"
	"github.com/BoostyLabs/alkamint/mint"
)

// testEnv wires a Service against in-memory fakes.
type testEnv struct {
	cfg      *mint.Config
	store    *memStore
	source   *fakeChain
	caster   *fakeBroadcaster
	queue    *mint.BroadcastQueue
	launches *mint.LaunchCache
	service  *mint.Service

	payerKey    *btcec.PrivateKey
	payerAddr   string
	receiveAddr string
}

func keyedAddress(t *testing.T, b byte) (*btcec.PrivateKey, string) {
	t.Helper()
	key, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), &chaincfg.TestNet3Params)
	require.NoError(t, err)

	return key, addr.EncodeAddress()
}

func newTestEnv(t *testing.T, batchSize int) *testEnv {
	t.Helper()

	payerKey, payerAddr := keyedAddress(t, 0x01)
	_, receiveAddr := keyedAddress(t, 0x02)
	_, revenueAddr := keyedAddress(t, 0x03)

	cfg := mint.DefaultConfig()
	cfg.Network = "testnet"
	cfg.RevenueAddress = revenueAddr
	cfg.BatchSize = batchSize
	require.NoError(t, cfg.Validate())

	store := newMemStore()
	source := newFakeChain()
	caster := newFakeBroadcaster()
	log := discardLogger()

	launches := mint.NewLaunchCache(log, func(context.Context) (map[string]mint.LaunchInfo, error) {
		return testLaunches(), nil
	}, time.Minute)
	require.NoError(t, launches.Init(context.Background()))

	queue := mint.NewBroadcastQueue(log, store, caster, 2, nil)
	go queue.Run(context.Background())
	t.Cleanup(queue.Shutdown)

	// one funding-sized UTXO on the payer address.
	source.utxos[payerAddr] = []bitcoin.UTXO{{
		TxID: hexPair(0x11), Index: 0, Value: 50_000_000, Address: payerAddr, Height: 1,
	}}

	return &testEnv{
		cfg:         &cfg,
		store:       store,
		source:      source,
		caster:      caster,
		queue:       queue,
		launches:    launches,
		service:     mint.NewService(log, &cfg, store, source, caster, queue, mint.NewMemoryLocker(), launches),
		payerKey:    payerKey,
		payerAddr:   payerAddr,
		receiveAddr: receiveAddr,
	}
}

func (env *testEnv) mergeParams(mintAmount int, feerate, maxFeerate float64) mint.MergeOrderParams {
	return mint.MergeOrderParams{
		AlkaneID:       "2:17",
		MintAmount:     mintAmount,
		Feerate:        feerate,
		MaxFeerate:     maxFeerate,
		PaymentAddress: env.payerAddr,
		PaymentPubKey:  hex.EncodeToString(env.payerKey.PubKey().SerializeCompressed()),
		ReceiveAddress: env.receiveAddr,
	}
}

// signFunding signs every payer input of the unsigned funding PSBT and
// returns the signed container hex.
func (env *testEnv) signFunding(t *testing.T, unsigned *txbuilder.UnsignedPsbtResult) string {
	t.Helper()

	packet, err := txbuilder.ParsePsbt(unsigned.Hex)
	require.NoError(t, err)

	s := signer.NewSigner(&chaincfg.TestNet3Params)
	for _, group := range unsigned.SigningIndexes {
		require.Equal(t, env.payerAddr, group.Address)
		require.NoError(t, s.SignSegwitV0(packet, group.SigningIndexes, env.payerKey))
	}

	w := bytes.NewBuffer(nil)
	require.NoError(t, packet.Serialize(w))

	return hex.EncodeToString(w.Bytes())
}

// createMergeOrder drives the full creation path and drains the queue.
func (env *testEnv) createMergeOrder(t *testing.T, mintAmount int, feerate, maxFeerate float64) *mint.Order {
	t.Helper()
	ctx := context.Background()

	preview, err := env.service.PreCreateMergeOrder(ctx, env.mergeParams(mintAmount, feerate, maxFeerate))
	require.NoError(t, err)

	signed := env.signFunding(t, preview.Psbt)
	require.NoError(t, env.service.CreateMergeOrder(ctx, preview.Order.ID, env.payerAddr, signed))

	// only the first batch chain is built before funding confirmation.
	env.waitForItems(t, preview.Order.ID, mint.ItemMinting, min(mintAmount, env.cfg.BatchSize))

	order, err := env.store.GetOrder(ctx, preview.Order.ID)
	require.NoError(t, err)

	return order
}

// createNormalOrder drives the independent-transactions creation path and
// waits until every item is submitted.
func (env *testEnv) createNormalOrder(t *testing.T, mintAmount int, feerate, maxFeerate float64) *mint.Order {
	t.Helper()
	ctx := context.Background()

	preview, err := env.service.PreCreateNormalOrder(ctx, env.mergeParams(mintAmount, feerate, maxFeerate))
	require.NoError(t, err)

	signed := env.signFunding(t, preview.Psbt)
	require.NoError(t, env.service.CreateNormalOrder(ctx, preview.Order.ID, env.payerAddr, signed))

	env.waitForItems(t, preview.Order.ID, mint.ItemMinting, mintAmount)

	order, err := env.store.GetOrder(ctx, preview.Order.ID)
	require.NoError(t, err)

	return order
}

// waitForItems polls until at least count items of the order reach the
// status, failing the test on timeout.
func (env *testEnv) waitForItems(t *testing.T, orderID string, status mint.ItemStatus, count int) {
	t.Helper()

	require.Eventually(t, func() bool {
		items, err := env.store.ListItems(context.Background(), orderID)
		if err != nil {
			return false
		}

		matched := 0
		for _, item := range items {
			if item.Status == status {
				matched++
			}
		}

		return matched >= count
	}, 5*time.Second, 10*time.Millisecond)
}

func hexPair(b byte) string {
	return hex.EncodeToString(bytes.Repeat([]byte{b}, 32))
}
