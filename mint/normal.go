// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
	"github.com/BoostyLabs/alkamint/bitcoin/txbuilder"
)

// NormalOrderQuote is a cost breakdown of a normal (independent transactions)
// order. Every mint spends its own funding seed, so there is no chaining and
// no per-batch accounting: the whole order is priced per item.
type NormalOrderQuote struct {
	ItemSize    int64
	SeedPerMint int64

	NetworkFee int64
	Prepaid    int64
	Postage    int64
	ServiceFee int64
	Total      int64
}

// EstimateNormalOrder quotes a normal order without creating it.
func (s *Service) EstimateNormalOrder(ctx context.Context, params MergeOrderParams) (*NormalOrderQuote, error) {
	launch, err := s.launches.Get(params.AlkaneID)
	if err != nil {
		return nil, err
	}

	if err = s.validateMergeParams(params); err != nil {
		return nil, err
	}

	return s.quoteNormal(launch, params.MintAmount, params.Feerate, params.MaxFeerate, params.ReceiveAddress)
}

// quoteNormal prices independent mint transactions. Each one spends a single
// ephemeral P2WPKH seed and carries the mint data output, the postage output
// to the receiver and a change slot back to the payer.
func (s *Service) quoteNormal(launch LaunchInfo, mintAmount int, feerate, maxFeerate float64, receiveAddress string) (*NormalOrderQuote, error) {
	stoneScript, err := mintScript(launch)
	if err != nil {
		return nil, err
	}

	itemSize, err := fees.EstimateSize(
		[]fees.InputDescriptor{{Type: bitcoin.P2WPKH}},
		[]fees.OutputDescriptor{
			{Script: stoneScript},
			{Address: receiveAddress},
			{Type: bitcoin.P2WPKH},
		})
	if err != nil {
		return nil, err
	}

	itemFee := fees.Fee(float64(itemSize), feerate)
	itemFeeMax := fees.Fee(float64(itemSize), maxFeerate)
	n := int64(mintAmount)

	quote := &NormalOrderQuote{
		ItemSize:    itemSize,
		SeedPerMint: itemFeeMax + s.cfg.Postage,
		NetworkFee:  itemFee * n,
		Prepaid:     (itemFeeMax - itemFee) * n,
		Postage:     s.cfg.Postage * n,
		// one transaction per mint, priced like a batch each.
		ServiceFee: s.cfg.ServiceFee.ForOrder(mintAmount, mintAmount),
	}
	quote.Total = itemFeeMax*n + quote.Postage + quote.ServiceFee

	return quote, nil
}

// normalChangeHeadroom sums the per-mint change outputs the payer gets back
// when every transaction confirms at the given fee rate.
func normalChangeHeadroom(quote *NormalOrderQuote, postage int64, feerate float64, mints int) int64 {
	c := quote.SeedPerMint - fees.Fee(float64(quote.ItemSize), feerate) - postage
	if c <= bitcoin.DustLimit {
		return 0
	}

	return c * int64(mints)
}

// PreCreateNormalOrder creates an unpaid normal order and the unsigned
// funding PSBT. The funding transaction carries one seed per mint on the
// order's ephemeral address plus the service fee output; the mint data lives
// in the item transactions themselves.
func (s *Service) PreCreateNormalOrder(ctx context.Context, params MergeOrderParams) (*NormalOrderPreview, error) {
	launch, err := s.launches.Get(params.AlkaneID)
	if err != nil {
		return nil, err
	}

	if err = s.validateMergeParams(params); err != nil {
		return nil, err
	}
	if _, err = bitcoin.ValidateAddress(params.PaymentAddress, s.networkParams); err != nil {
		return nil, fmt.Errorf("payment address: %w", err)
	}

	quote, err := s.quoteNormal(launch, params.MintAmount, params.Feerate, params.MaxFeerate, params.ReceiveAddress)
	if err != nil {
		return nil, err
	}

	orderID, err := newOrderID()
	if err != nil {
		return nil, err
	}

	mintAddress, err := DeriveMintAddress(orderID, s.networkParams)
	if err != nil {
		return nil, err
	}

	outputs := make([]bitcoin.Output, 0, params.MintAmount+1)
	for i := 0; i < params.MintAmount; i++ {
		outputs = append(outputs, bitcoin.Output{Address: mintAddress, Value: quote.SeedPerMint})
	}
	if quote.ServiceFee > 0 {
		outputs = append(outputs, bitcoin.Output{Address: s.cfg.RevenueAddress, Value: quote.ServiceFee})
	}

	inputs, err := s.selectFunding(ctx, params, outputs)
	if err != nil {
		return nil, err
	}

	unsigned, err := s.builder.CreateUnsignedPsbt(ctx, inputs, outputs, params.PaymentAddress, params.Feerate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &Order{
		ID:             orderID,
		Model:          ModelNormal,
		AlkaneID:       params.AlkaneID,
		MintAddress:    mintAddress,
		PaymentAddress: params.PaymentAddress,
		PaymentPubKey:  params.PaymentPubKey,
		ReceiveAddress: params.ReceiveAddress,
		Feerate:        params.Feerate,
		LatestFeerate:  params.Feerate,
		MaxFeerate:     params.MaxFeerate,
		Prepaid:        quote.Prepaid,
		Change:         normalChangeHeadroom(quote, s.cfg.Postage, params.Feerate, params.MintAmount),
		Postage:        s.cfg.Postage,
		ServiceFee:     quote.ServiceFee,
		NetworkFee:     quote.NetworkFee,
		TotalFee:       quote.Total + unsigned.Fee,
		MintAmount:     params.MintAmount,
		Status:         StatusUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info("normal order created",
		"order", orderID, "alkane", params.AlkaneID, "mints", params.MintAmount)

	return &NormalOrderPreview{Order: order, Quote: quote, Psbt: unsigned}, nil
}

// NormalOrderPreview is a created unpaid normal order together with the
// funding transaction the payer must sign.
type NormalOrderPreview struct {
	Order *Order
	Quote *NormalOrderQuote
	Psbt  *txbuilder.UnsignedPsbtResult
}

// CreateNormalOrder accepts the signed funding PSBT, broadcasts it and
// submits every mint transaction. Unlike merge chains the items are
// independent, so all of them are built up front and pushed concurrently;
// the order goes straight to minting.
func (s *Service) CreateNormalOrder(ctx context.Context, orderID, callerAddress, signedPsbt string) error {
	return s.locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		order, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentAddress != callerAddress {
			return ErrUnauthorizedOrderAccess
		}
		if order.Model != ModelNormal {
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

		quote, err := s.quoteNormal(launch, order.MintAmount, order.Feerate, order.MaxFeerate, order.ReceiveAddress)
		if err != nil {
			return err
		}

		items, err := s.buildNormalItems(order, launch, quote)
		if err != nil {
			return err
		}

		order.Status = StatusMinting
		order.SubmittedAmount = len(items)
		order.UpdatedAt = time.Now().UTC()

		if err = s.store.SaveOrderWithItems(ctx, order, items); err != nil {
			return err
		}

		s.log.Info("funding submitted", "order", orderID, "tx", txid, "mints", len(items))

		return s.queue.Enqueue(ctx, BroadcastJob{
			OrderID: orderID,
			Items:   dereferenceItems(items),
		})
	})
}

// buildNormalItems builds and signs one independent mint transaction per
// funding seed. Seed i sits at funding output i.
func (s *Service) buildNormalItems(order *Order, launch LaunchInfo, quote *NormalOrderQuote) ([]*Item, error) {
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

	fundingHash, err := chainhash.NewHashFromStr(order.PaymentHash)
	if err != nil {
		return nil, err
	}

	key := DeriveOrderKey(order.ID)
	fee := fees.Fee(float64(quote.ItemSize), order.Feerate)
	now := time.Now().UTC()

	items := make([]*Item, 0, order.MintAmount)
	for i := 0; i < order.MintAmount; i++ {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(fundingHash, uint32(i)), nil, nil))
		tx.AddTxOut(wire.NewTxOut(0, stoneScript))
		tx.AddTxOut(wire.NewTxOut(s.cfg.Postage, receiveScript))

		change := quote.SeedPerMint - fee - s.cfg.Postage
		if change < 0 {
			return nil, bitcoin.NewInsufficientFunds(fee+s.cfg.Postage, quote.SeedPerMint)
		}
		if change > bitcoin.DustLimit {
			tx.AddTxOut(wire.NewTxOut(change, paymentScript))
		}

		if err = s.signChainItem(tx, quote.SeedPerMint, mintPkScript, key); err != nil {
			return nil, err
		}

		raw, err := serializeTx(tx)
		if err != nil {
			return nil, err
		}

		items = append(items, &Item{
			OrderID:        order.ID,
			InputUtxo:      bitcoin.FormatOutPoint(order.PaymentHash, uint32(i), quote.SeedPerMint),
			TxSize:         quote.ItemSize,
			BatchIndex:     i,
			MintIndex:      0,
			ReceiveAddress: order.ReceiveAddress,
			MintHash:       tx.TxHash().String(),
			RawTx:          raw,
			Status:         ItemWaiting,
			UpdatedAt:      now,
		})
	}

	return items, nil
}
