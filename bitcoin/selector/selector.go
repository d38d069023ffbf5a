// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package selector

import (
	"context"
	"sort"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/chain"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
)

// maxPages bounds UTXO index pagination.
const maxPages = 100

// Selector provides greedy UTXO selection against a fee-rate-aware target.
type Selector struct {
	source chain.Source
}

// New is a constructor for Selector.
func New(source chain.Source) *Selector {
	return &Selector{source: source}
}

// SelectByTarget accumulates UTXOs of the address until their total value
// covers minAmount plus the marginal fee of every selected input. Largest
// values go first to minimize the input count. The target grows by
// inputSize(address) * feerate on each accepted input, so the fee of each
// additional input is priced in instead of a fixed pre-computed fee.
// Dust outputs (<= 546 sat) are never selected. With requireConfirmed set,
// unconfirmed candidates are verified against chain state and skipped.
func (s *Selector) SelectByTarget(ctx context.Context, address string, minAmount int64, feerate float64, requireConfirmed bool) ([]bitcoin.UTXO, error) {
	inputSize, err := fees.InputSize(address)
	if err != nil {
		return nil, err
	}

	candidates, err := s.fetchAll(ctx, address)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	var (
		marginalFee = fees.Fee(inputSize, feerate)
		needAmount  = minAmount
		totalAmount int64
		selected    []bitcoin.UTXO
	)
	for _, utxo := range candidates {
		if requireConfirmed && utxo.Height == 0 {
			confirmed, err := s.isConfirmed(ctx, utxo)
			if err != nil {
				return nil, err
			}
			if !confirmed {
				continue
			}
		}

		needAmount += marginalFee
		totalAmount += utxo.Value
		selected = append(selected, utxo)

		if totalAmount >= needAmount {
			return selected, nil
		}
	}

	return nil, bitcoin.NewInsufficientBalance(needAmount, totalAmount)
}

// fetchAll aggregates UTXO index pages, filtering dust.
func (s *Selector) fetchAll(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	var all []bitcoin.UTXO
	for page := 0; page < maxPages; page++ {
		utxos, err := s.source.ListUtxos(ctx, address, page)
		if err != nil {
			return nil, err
		}
		if len(utxos) == 0 {
			break
		}

		for _, utxo := range utxos {
			if utxo.Value <= bitcoin.DustLimit {
				continue
			}

			all = append(all, utxo)
		}
	}

	return all, nil
}

// isConfirmed queries chain state for the UTXO's funding transaction.
func (s *Selector) isConfirmed(ctx context.Context, utxo bitcoin.UTXO) (bool, error) {
	tx, err := s.source.GetTx(ctx, utxo.TxID)
	if err != nil {
		return false, err
	}

	return tx != nil && tx.Status.Confirmed, nil
}
