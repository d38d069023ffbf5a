// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// scanBatchLimit bounds orders picked up per sweep.
const scanBatchLimit = 50

// Scanner periodically drives interrupted orders forward. Every step is
// idempotent: the sweep observes chain state and issues no writes when the
// stored state already matches it, so crashing at any point is safe.
type Scanner struct {
	service *Service
}

// NewScanner is a constructor for Scanner.
func NewScanner(service *Service) *Scanner {
	return &Scanner{service: service}
}

// Run sweeps on the configured interval until the context is cancelled.
func (scanner *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(scanner.service.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanner.service.HandlePartialOrders(ctx)
			scanner.service.HandleMintingOrders(ctx)
		}
	}
}

// HandlePartialOrders advances funded-but-incomplete orders: re-broadcasts
// missing funding transactions, detects payer-side RBF replacement, and
// builds the remaining batch chains once funding confirms.
func (s *Service) HandlePartialOrders(ctx context.Context) {
	orders, err := s.store.ListOrdersByStatus(ctx, StatusPartial, scanBatchLimit)
	if err != nil {
		s.log.Error("list partial orders failed", "error", err)
		return
	}

	for i := range orders {
		order := orders[i]
		err = s.locker.WithLock(ctx, order.ID, func(ctx context.Context) error {
			return s.recoverPartialOrder(ctx, &order)
		})
		if err != nil && !errors.Is(err, ErrLockHeld) {
			s.log.Error("partial order recovery failed", "order", order.ID, "error", err)
		}
	}
}

// HandleMintingOrders confirms submitted items, re-broadcasts lost ones,
// heals externally replaced chain links and completes finished orders.
func (s *Service) HandleMintingOrders(ctx context.Context) {
	orders, err := s.store.ListOrdersByStatus(ctx, StatusMinting, scanBatchLimit)
	if err != nil {
		s.log.Error("list minting orders failed", "error", err)
		return
	}

	for i := range orders {
		order := orders[i]
		err = s.locker.WithLock(ctx, order.ID, func(ctx context.Context) error {
			return s.recoverMintingOrder(ctx, &order)
		})
		if err != nil && !errors.Is(err, ErrLockHeld) {
			s.log.Error("minting order recovery failed", "order", order.ID, "error", err)
		}
	}
}

func (s *Service) recoverPartialOrder(ctx context.Context, order *Order) error {
	tx, err := s.chain.GetTx(ctx, order.PaymentHash)
	if err != nil {
		return err
	}

	if tx == nil {
		replaced, err := s.fundingReplaced(ctx, order)
		if err != nil {
			return err
		}
		if replaced {
			if _, err = s.store.UpdateOrderStatus(ctx, order.ID, StatusPartial, StatusCancelled); err != nil {
				return err
			}

			s.log.Warn("funding replaced by payer, order cancelled", "order", order.ID)

			return ErrRbfReplaced
		}

		// not observed and not replaced: resubmit.
		if outcome := s.broadcaster.Push(ctx, order.PaymentRawTx); outcome.Fatal() {
			return fmt.Errorf("funding resubmit: %w: %s", ErrNetworkRejected, outcome.Reason)
		}

		return nil
	}

	if !tx.Status.Confirmed {
		return nil
	}

	return s.buildRemainingBatches(ctx, order)
}

// fundingReplaced reports whether any funding input was spent by a
// different transaction than the one the order recorded.
func (s *Service) fundingReplaced(ctx context.Context, order *Order) (bool, error) {
	raw, err := hex.DecodeString(order.PaymentRawTx)
	if err != nil {
		return false, fmt.Errorf("funding hex of order %s: %w", order.ID, err)
	}

	funding := wire.NewMsgTx(2)
	if err = funding.Deserialize(bytes.NewReader(raw)); err != nil {
		return false, fmt.Errorf("funding of order %s: %w", order.ID, err)
	}

	for _, in := range funding.TxIn {
		spent, err := s.chain.GetSpentInfo(ctx, in.PreviousOutPoint.Hash.String(), in.PreviousOutPoint.Index)
		if err != nil {
			return false, err
		}

		if spent != nil && spent.Spent && spent.TxID != "" && spent.TxID != order.PaymentHash {
			return true, nil
		}
	}

	return false, nil
}

// buildRemainingBatches builds and submits every batch chain that has no
// items yet, then moves the order to minting.
func (s *Service) buildRemainingBatches(ctx context.Context, order *Order) error {
	launch, err := s.launches.Lookup(order.AlkaneID)
	if err != nil {
		return err
	}

	quote, err := s.quote(launch, order.MintAmount, order.Feerate, order.MaxFeerate, order.ReceiveAddress)
	if err != nil {
		return err
	}

	items, err := s.store.ListItems(ctx, order.ID)
	if err != nil {
		return err
	}

	builtBatches := 0
	for _, item := range items {
		if item.BatchIndex+1 > builtBatches {
			builtBatches = item.BatchIndex + 1
		}
	}

	var jobs []BroadcastJob
	for batch := builtBatches; batch < len(quote.Batches); batch++ {
		seed := bitcoin.UTXO{
			TxID:    order.PaymentHash,
			Index:   uint32(batch),
			Value:   quote.BatchSeeds[batch],
			Address: order.MintAddress,
		}

		// mint indexes restart at zero within every batch.
		built, err := s.buildBatchChain(order, launch, batch, 0, seed, order.LatestFeerate)
		if err != nil {
			return err
		}

		order.SubmittedAmount += len(built)

		if err = s.store.SaveOrderWithItems(ctx, order, built); err != nil {
			return err
		}

		jobs = append(jobs, BroadcastJob{OrderID: order.ID, Items: dereferenceItems(built), Sequential: true})
	}

	if ok, err := s.store.UpdateOrderStatus(ctx, order.ID, StatusPartial, StatusMinting); err != nil {
		return err
	} else if ok {
		s.log.Info("order fully submitted", "order", order.ID, "batches", len(quote.Batches))
	}

	for _, job := range jobs {
		if err = s.queue.Enqueue(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) recoverMintingOrder(ctx context.Context, order *Order) error {
	items, err := s.store.ListItems(ctx, order.ID)
	if err != nil {
		return err
	}

	completed := 0
	for i := range items {
		item := &items[i]
		if item.Status == ItemCompleted {
			completed++
			continue
		}

		done, err := s.recoverItem(ctx, order, item)
		if err != nil {
			s.log.Error("item recovery failed", "order", order.ID, "item", item.ID, "error", err)
			continue
		}
		if done {
			completed++
		}
	}

	if completed != order.CompletedAmount {
		order.CompletedAmount = completed
		order.UpdatedAt = time.Now().UTC()
		if err = s.store.UpdateOrder(ctx, order); err != nil {
			return err
		}
	}

	if completed == len(items) && len(items) > 0 {
		if ok, err := s.store.UpdateOrderStatus(ctx, order.ID, StatusMinting, StatusCompleted); err != nil {
			return err
		} else if ok {
			s.log.Info("order completed", "order", order.ID, "mints", completed)
		}
	}

	return nil
}

// recoverItem reconciles one item with chain state. Reports whether the
// item is confirmed.
func (s *Service) recoverItem(ctx context.Context, order *Order, item *Item) (bool, error) {
	tx, err := s.chain.GetTx(ctx, item.MintHash)
	if err != nil {
		return false, err
	}

	if tx != nil {
		if !tx.Status.Confirmed {
			return false, nil
		}

		if _, err = s.store.UpdateItemStatus(ctx, item.ID, item.Status, ItemCompleted); err != nil {
			return false, err
		}

		return true, nil
	}

	// the recorded transaction is unknown to the network: either it was
	// dropped, or its input was consumed by a replacement we did not record.
	healed, err := s.healReplacedItem(ctx, item)
	if err != nil {
		return false, err
	}
	if healed {
		return false, nil
	}

	if outcome := s.broadcaster.Push(ctx, item.RawTx); outcome.Fatal() {
		return false, fmt.Errorf("resubmit item %d: %w: %s", item.ID, ErrNetworkRejected, outcome.Reason)
	}

	return false, nil
}

// healReplacedItem adopts the transaction that actually spent the item's
// input when it differs from the recorded one, keeping the stored chain
// consistent with the network.
func (s *Service) healReplacedItem(ctx context.Context, item *Item) (bool, error) {
	txid, vout, _, err := bitcoin.ParseOutPoint(item.InputUtxo)
	if err != nil {
		return false, err
	}

	spent, err := s.chain.GetSpentInfo(ctx, txid, vout)
	if err != nil {
		return false, err
	}
	if spent == nil || !spent.Spent || spent.TxID == "" || spent.TxID == item.MintHash {
		return false, nil
	}

	rawTx, err := s.chain.GetTxHex(ctx, spent.TxID)
	if err != nil {
		return false, err
	}

	item.MintHash = spent.TxID
	if rawTx != "" {
		item.RawTx = rawTx
	}
	item.UpdatedAt = time.Now().UTC()

	if err = s.store.UpdateItem(ctx, item); err != nil {
		return false, err
	}

	s.log.Warn("item healed with replacement transaction", "item", item.ID, "tx", spent.TxID)

	return true, nil
}
