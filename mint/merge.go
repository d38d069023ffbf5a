// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
	"github.com/BoostyLabs/alkamint/bitcoin/txbuilder"
)

// CreateMergeOrder accepts the signed funding PSBT, broadcasts it and
// submits the first batch chain. Remaining batches are built by the recovery
// scanner once the funding transaction confirms, their seeds are not safe to
// chain off an unconfirmed parent that the payer can still replace.
func (s *Service) CreateMergeOrder(ctx context.Context, orderID, callerAddress, signedPsbt string) error {
	return s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentAddress != callerAddress {
			return ErrUnauthorizedOrderAccess
		}
		if order.Model != ModelMerge {
			return fmt.Errorf("order model is %s: %w", order.Model, ErrInvalidOrderState)
		}
		if order.Status != StatusUnpaid {
			return fmt.Errorf("order is %s: %w", order.Status, ErrInvalidOrderState)
		}

		packet, err := txbuilder.ParsePsbt(signedPsbt)
		if err != nil {
			return err
		}
		if !txbuilder.ValidateSignatures(packet) {
			return ErrUnsignedPsbt
		}

		// finalization is the actual signedness proof, the field check above
		// only fails fast on obviously empty containers.
		rawTx, txid, err := s.signer.Finalize(packet)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsignedPsbt, err)
		}

		launch, err := s.launches.Get(order.AlkaneID)
		if err != nil {
			return err
		}

		if outcome := s.broadcaster.Push(ctx, rawTx); outcome.Fatal() {
			return fmt.Errorf("funding: %w: %s", ErrNetworkRejected, outcome.Reason)
		}

		order.PaymentHash = txid
		order.PaymentRawTx = rawTx

		quote, err := s.quote(launch, order.MintAmount, order.Feerate, order.MaxFeerate, order.ReceiveAddress)
		if err != nil {
			return err
		}

		seed := bitcoin.UTXO{
			TxID:    txid,
			Index:   0,
			Value:   quote.BatchSeeds[0],
			Address: order.MintAddress,
		}
		items, err := s.buildBatchChain(order, launch, 0, 0, seed, order.Feerate)
		if err != nil {
			return err
		}

		order.Status = StatusPartial
		if len(quote.Batches) == 1 {
			order.Status = StatusMinting
		}
		order.SubmittedAmount = len(items)
		order.UpdatedAt = time.Now().UTC()

		if err = s.store.SaveOrderWithItems(ctx, order, items); err != nil {
			return err
		}

		s.log.Info("funding submitted", "order", orderID, "tx", txid, "first_batch", len(items))

		return s.queue.Enqueue(ctx, BroadcastJob{
			OrderID:    orderID,
			Items:      dereferenceItems(items),
			Sequential: true,
		})
	})
}

// AccelerateMergeOrder rebuilds the unconfirmed tail of the active batch at
// a higher fee rate, funded by the prepaid margin. The rebuilt transactions
// spend the same outpoints and replace the old ones via RBF.
func (s *Service) AccelerateMergeOrder(ctx context.Context, orderID, callerAddress string, newFeerate float64) error {
	return s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentAddress != callerAddress {
			return ErrUnauthorizedOrderAccess
		}
		if order.Model != ModelMerge {
			return fmt.Errorf("order model is %s: %w", order.Model, ErrInvalidOrderState)
		}
		if order.Status != StatusPartial && order.Status != StatusMinting {
			return fmt.Errorf("order is %s: %w", order.Status, ErrInvalidOrderState)
		}
		if newFeerate <= order.LatestFeerate || newFeerate > order.MaxFeerate {
			return ErrFeerateExceedsMax
		}

		launch, err := s.launches.Lookup(order.AlkaneID)
		if err != nil {
			return err
		}

		items, err := s.store.ListItems(ctx, orderID)
		if err != nil {
			return err
		}

		pending := pendingTail(items)
		if len(pending) == 0 {
			return fmt.Errorf("no pending items: %w", ErrInvalidOrderState)
		}

		quote, err := s.quote(launch, order.MintAmount, order.Feerate, order.MaxFeerate, order.ReceiveAddress)
		if err != nil {
			return err
		}

		head := pending[0]
		seedTxID, seedVout, seedValue, err := bitcoin.ParseOutPoint(head.InputUtxo)
		if err != nil {
			return err
		}

		seed := bitcoin.UTXO{TxID: seedTxID, Index: seedVout, Value: seedValue, Address: order.MintAddress}
		rebuilt, err := s.buildBatchChain(order, launch, head.BatchIndex, head.MintIndex, seed, newFeerate)
		if err != nil {
			return err
		}
		if len(rebuilt) != len(pending) {
			return fmt.Errorf("rebuilt %d of %d pending items: %w", len(rebuilt), len(pending), ErrInvalidOrderState)
		}

		// keep row identity, replace the transactions.
		for i := range rebuilt {
			rebuilt[i].ID = pending[i].ID
		}

		order.LatestFeerate = newFeerate
		order.Change = changeHeadroom(quote, s.cfg.Postage, newFeerate)
		order.UpdatedAt = time.Now().UTC()
		if err = s.store.SaveOrderWithItems(ctx, order, rebuilt); err != nil {
			return err
		}

		s.log.Info("order accelerated", "order", orderID, "feerate", newFeerate, "rebuilt", len(rebuilt))

		return s.queue.Enqueue(ctx, BroadcastJob{
			OrderID:    orderID,
			Items:      dereferenceItems(rebuilt),
			Sequential: true,
		})
	})
}

// CancelMergeOrder cancels a partially funded order and refunds the seeds of
// batches that were never built. Already-broadcast chains cannot be clawed
// back, their value completes as mints.
func (s *Service) CancelMergeOrder(ctx context.Context, orderID, callerAddress string) error {
	return s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentAddress != callerAddress {
			return ErrUnauthorizedOrderAccess
		}
		if !order.Status.CanTransition(StatusCancelled) {
			return fmt.Errorf("order is %s: %w", order.Status, ErrInvalidOrderState)
		}

		launch, err := s.launches.Lookup(order.AlkaneID)
		if err != nil {
			return err
		}

		quote, err := s.quote(launch, order.MintAmount, order.Feerate, order.MaxFeerate, order.ReceiveAddress)
		if err != nil {
			return err
		}

		items, err := s.store.ListItems(ctx, orderID)
		if err != nil {
			return err
		}

		builtBatches := 0
		for _, item := range items {
			if item.BatchIndex+1 > builtBatches {
				builtBatches = item.BatchIndex + 1
			}
		}

		refundTx, refunded, err := s.buildRefund(order, quote, builtBatches)
		if err != nil {
			return err
		}

		ok, err := s.store.UpdateOrderStatus(ctx, orderID, StatusPartial, StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOrderState
		}

		if refundTx != "" {
			if outcome := s.broadcaster.Push(ctx, refundTx); outcome.Fatal() {
				return fmt.Errorf("refund: %w: %s", ErrNetworkRejected, outcome.Reason)
			}
		}

		s.log.Info("order cancelled", "order", orderID, "refunded", refunded)

		return nil
	})
}

// buildRefund drains unbuilt batch seeds in one signed transaction: postage
// to the receiver, the remainder to the payer. Returns empty hex when the
// seeds do not cover even the postage.
func (s *Service) buildRefund(order *Order, quote *MergeOrderQuote, builtBatches int) (rawTx string, refunded int64, err error) {
	if builtBatches >= len(quote.BatchSeeds) {
		return "", 0, nil
	}

	mintScript, err := s.payScript(order.MintAddress)
	if err != nil {
		return "", 0, err
	}

	receiveScript, err := s.payScript(order.ReceiveAddress)
	if err != nil {
		return "", 0, err
	}

	paymentScript, err := s.payScript(order.PaymentAddress)
	if err != nil {
		return "", 0, err
	}

	fundingHash, err := chainhash.NewHashFromStr(order.PaymentHash)
	if err != nil {
		return "", 0, err
	}

	tx := wire.NewMsgTx(2)
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)

	var total int64
	for batch := builtBatches; batch < len(quote.BatchSeeds); batch++ {
		// funding lays seeds out first, so batch index is the vout.
		outPoint := wire.NewOutPoint(fundingHash, uint32(batch))
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
		prevOuts[*outPoint] = wire.NewTxOut(quote.BatchSeeds[batch], mintScript)
		total += quote.BatchSeeds[batch]
	}

	inputs := make([]fees.InputDescriptor, len(tx.TxIn))
	for i := range inputs {
		inputs[i] = fees.InputDescriptor{Type: bitcoin.P2WPKH}
	}

	size, err := fees.EstimateSize(inputs, []fees.OutputDescriptor{
		{Address: order.ReceiveAddress},
		{Address: order.PaymentAddress},
	})
	if err != nil {
		return "", 0, err
	}

	remainder := total - fees.Fee(float64(size), order.LatestFeerate) - s.cfg.Postage
	if remainder < 0 {
		return "", 0, nil
	}

	tx.AddTxOut(wire.NewTxOut(s.cfg.Postage, receiveScript))

	refunded = s.cfg.Postage
	if remainder > bitcoin.DustLimit {
		tx.AddTxOut(wire.NewTxOut(remainder, paymentScript))
		refunded += remainder
	}

	key := DeriveOrderKey(order.ID)
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i := range tx.TxIn {
		prevOut := prevOuts[tx.TxIn[i].PreviousOutPoint]
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, i, prevOut.Value, prevOut.PkScript,
			txscript.SigHashAll, key, true)
		if err != nil {
			return "", 0, fmt.Errorf("sign refund input %d: %w", i, err)
		}

		tx.TxIn[i].Witness = witness
	}

	raw, err := serializeTx(tx)
	if err != nil {
		return "", 0, err
	}

	return raw, refunded, nil
}

// buildBatchChain builds and signs the chained mint transactions of one
// batch from the given seed. Each transaction spends the previous one's
// carry output at index 1; the terminal one delivers postage to the
// receiver and returns the remaining prepaid margin to the payer.
func (s *Service) buildBatchChain(order *Order, launch LaunchInfo, batchIndex, startMintIndex int, seed bitcoin.UTXO, feerate float64) ([]*Item, error) {
	batches := SplitBatches(order.MintAmount, s.cfg.BatchSize)
	if batchIndex >= len(batches) {
		return nil, fmt.Errorf("batch index %d is out of range [0;%d)", batchIndex, len(batches))
	}

	batchLen := batches[batchIndex]
	if startMintIndex >= batchLen {
		return nil, fmt.Errorf("mint index %d is past batch length %d", startMintIndex, batchLen)
	}

	stoneScript, err := mintScript(launch)
	if err != nil {
		return nil, err
	}

	mintPkScript, err := s.payScript(order.MintAddress)
	if err != nil {
		return nil, err
	}

	receiveScript, err := s.payScript(order.ReceiveAddress)
	if err != nil {
		return nil, err
	}

	paymentScript, err := s.payScript(order.PaymentAddress)
	if err != nil {
		return nil, err
	}

	key := DeriveOrderKey(order.ID)
	now := time.Now().UTC()

	items := make([]*Item, 0, batchLen-startMintIndex)
	current := seed
	for mintIndex := startMintIndex; mintIndex < batchLen; mintIndex++ {
		isLast := mintIndex == batchLen-1

		prevHash, err := chainhash.NewHashFromStr(current.TxID)
		if err != nil {
			return nil, err
		}

		tx := wire.NewMsgTx(2)
		outPoint := wire.NewOutPoint(prevHash, current.Index)
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
		tx.AddTxOut(wire.NewTxOut(0, stoneScript))

		size, err := chainItemSize(stoneScript, order.ReceiveAddress, isLast)
		if err != nil {
			return nil, err
		}

		fee := fees.Fee(float64(size), feerate)
		if isLast {
			change := current.Value - fee - s.cfg.Postage
			if change < 0 {
				return nil, bitcoin.NewInsufficientFunds(fee+s.cfg.Postage, current.Value)
			}

			tx.AddTxOut(wire.NewTxOut(s.cfg.Postage, receiveScript))
			if change > bitcoin.DustLimit {
				tx.AddTxOut(wire.NewTxOut(change, paymentScript))
			}
		} else {
			carry := current.Value - fee
			if carry <= bitcoin.DustLimit {
				return nil, bitcoin.NewInsufficientFunds(fee+bitcoin.DustLimit, current.Value)
			}

			tx.AddTxOut(wire.NewTxOut(carry, mintPkScript))
		}

		if err = s.signChainItem(tx, current.Value, mintPkScript, key); err != nil {
			return nil, err
		}

		raw, err := serializeTx(tx)
		if err != nil {
			return nil, err
		}

		// inner items deliver to the ephemeral address, only the terminal
		// one reaches the order's receiver.
		receiveAddress := order.MintAddress
		if isLast {
			receiveAddress = order.ReceiveAddress
		}

		txid := tx.TxHash().String()
		items = append(items, &Item{
			OrderID:        order.ID,
			InputUtxo:      bitcoin.FormatOutPoint(current.TxID, current.Index, current.Value),
			TxSize:         size,
			BatchIndex:     batchIndex,
			MintIndex:      mintIndex,
			ReceiveAddress: receiveAddress,
			MintHash:       txid,
			RawTx:          raw,
			Status:         ItemWaiting,
			UpdatedAt:      now,
		})

		if !isLast {
			current = bitcoin.UTXO{
				TxID:    txid,
				Index:   1,
				Value:   tx.TxOut[1].Value,
				Address: order.MintAddress,
			}
		}
	}

	return items, nil
}

// signChainItem signs the single ephemeral P2WPKH input of a chain item.
func (s *Service) signChainItem(tx *wire.MsgTx, prevValue int64, prevScript []byte, key *btcec.PrivateKey) error {
	prevOut := wire.NewTxOut(prevValue, prevScript)
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	witness, err := txscript.WitnessSignature(
		tx, sigHashes, 0, prevValue, prevScript,
		txscript.SigHashAll, key, true)
	if err != nil {
		return fmt.Errorf("sign chain item: %w", err)
	}

	tx.TxIn[0].Witness = witness

	return nil
}

// chainItemSize estimates the virtual size of a chain item transaction.
func chainItemSize(stoneScript []byte, receiveAddress string, isLast bool) (int64, error) {
	outputs := []fees.OutputDescriptor{{Script: stoneScript}}
	if isLast {
		outputs = append(outputs,
			fees.OutputDescriptor{Address: receiveAddress},
			fees.OutputDescriptor{Type: bitcoin.P2WPKH})
	} else {
		outputs = append(outputs, fees.OutputDescriptor{Type: bitcoin.P2WPKH})
	}

	return fees.EstimateSize([]fees.InputDescriptor{{Type: bitcoin.P2WPKH}}, outputs)
}

// pendingTail returns the contiguous not-yet-confirmed suffix of the first
// batch that still has pending items.
func pendingTail(items []Item) []Item {
	start := -1
	for i, item := range items {
		if item.Status != ItemCompleted {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	tail := []Item{items[start]}
	for _, item := range items[start+1:] {
		if item.BatchIndex != items[start].BatchIndex {
			break
		}

		tail = append(tail, item)
	}

	return tail
}

// payScript returns the locking script of the address.
func (s *Service) payScript(address string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, s.networkParams)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(decoded)
}

// serializeTx encodes the transaction into network hex.
func serializeTx(tx *wire.MsgTx) (string, error) {
	w := bytes.NewBuffer(nil)
	if err := tx.Serialize(w); err != nil {
		return "", err
	}

	return hex.EncodeToString(w.Bytes()), nil
}

// dereferenceItems converts persisted item pointers into queue values.
func dereferenceItems(items []*Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}

	return out
}
