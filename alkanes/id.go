// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package alkanes

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// AlkaneID identifies a deployed alkane contract by the block and
// transaction parts of its genesis outpoint.
type AlkaneID struct {
	Block uint64
	Tx    uint64
}

// ParseAlkaneID parses AlkaneID from "block:tx" form.
func ParseAlkaneID(s string) (AlkaneID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return AlkaneID{}, fmt.Errorf("malformed alkane id %q", s)
	}

	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return AlkaneID{}, fmt.Errorf("malformed alkane id block %q: %w", s, err)
	}

	tx, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return AlkaneID{}, fmt.Errorf("malformed alkane id tx %q: %w", s, err)
	}

	return AlkaneID{Block: block, Tx: tx}, nil
}

// String returns AlkaneID in "block:tx" form.
func (id AlkaneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// ToIntSeq returns AlkaneID as a sequence of integers.
func (id AlkaneID) ToIntSeq() []*big.Int {
	return []*big.Int{
		new(big.Int).SetUint64(id.Block),
		new(big.Int).SetUint64(id.Tx),
	}
}

// Next applies delta decoding: the delta id is relative to the previous
// one within an edict list.
func (id AlkaneID) Next(delta AlkaneID) AlkaneID {
	if delta.Block == 0 {
		return AlkaneID{Block: id.Block, Tx: id.Tx + delta.Tx}
	}

	return AlkaneID{Block: id.Block + delta.Block, Tx: delta.Tx}
}
