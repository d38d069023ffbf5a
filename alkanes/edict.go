// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package alkanes

import (
	"math/big"
	"slices"

	"github.com/BoostyLabs/alkamint/internal/numbers"
	"github.com/BoostyLabs/alkamint/internal/sequencereader"
)

// Edict directs a token quantity of the given alkane to a specific
// transaction output. Amount 0 (or any amount at or above the available
// balance) transfers the entire input balance; any remainder is
// auto-returned to the protostone pointer output.
type Edict struct {
	ID     AlkaneID
	Amount *big.Int
	Output uint32
}

// ToIntSeq returns Edict as a sequence of integers.
func (edict *Edict) ToIntSeq() []*big.Int {
	return append(edict.ID.ToIntSeq(), new(big.Int).Set(edict.Amount), big.NewInt(int64(edict.Output)))
}

// ParseEdictsFromIntSeq parses a vector of Edicts from a number sequence.
func ParseEdictsFromIntSeq(sr *sequencereader.SequenceReader[*big.Int]) ([]Edict, error) {
	if sr.Len()%4 != 0 {
		return nil, ErrMalformedPayload
	}

	var prevID AlkaneID
	edicts := make([]Edict, 0, sr.Len()/4)
	for sr.HasNext() {
		// skip errors due to previous mod 4 check.
		block, _ := sr.Next()
		tx, _ := sr.Next()
		amount, _ := sr.Next()
		output, _ := sr.Next()

		if !numbers.IsPositive(amount) && !numbers.IsZero(amount) {
			return nil, ErrMalformedPayload
		}

		edict := Edict{
			ID: prevID.Next(AlkaneID{
				Block: block.Uint64(),
				Tx:    tx.Uint64(),
			}),
			Amount: amount,
			Output: uint32(output.Uint64()),
		}

		prevID = edict.ID
		edicts = append(edicts, edict)
	}

	return edicts, nil
}

// SortEdicts sorts edicts by block number and transaction id.
func SortEdicts(edicts []Edict) {
	slices.SortFunc(edicts, func(a, b Edict) int {
		if a.ID.Block != b.ID.Block {
			return int(a.ID.Block) - int(b.ID.Block)
		}

		return int(a.ID.Tx) - int(b.ID.Tx)
	})
}

// EdictsToIntSeq converts a list of Edicts into a delta-encoded list of
// integers, sorting first so deltas stay non-negative.
func EdictsToIntSeq(edicts []Edict) []*big.Int {
	SortEdicts(edicts)

	var (
		sequence = make([]*big.Int, 0, len(edicts)*4)
		prev     AlkaneID
	)
	for _, edict := range edicts {
		delta := AlkaneID{Block: edict.ID.Block - prev.Block}
		if delta.Block == 0 {
			delta.Tx = edict.ID.Tx - prev.Tx
		} else {
			delta.Tx = edict.ID.Tx
		}

		deltaEdict := Edict{ID: delta, Amount: edict.Amount, Output: edict.Output}
		sequence = append(sequence, deltaEdict.ToIntSeq()...)
		prev = edict.ID
	}

	return sequence
}
