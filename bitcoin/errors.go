// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds defines that inputs cannot cover outputs plus fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInsufficientBalance defines that the address balance cannot reach the
// selection target after exhausting the candidate UTXO set.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrUnknownScriptType defines address or script classification failure.
var ErrUnknownScriptType = errors.New("unknown script type")

// InsufficientError describes an insufficient funds/balance error with
// need and have amounts in satoshi.
type InsufficientError struct {
	Sentinel error
	Need     int64
	Have     int64
}

// NewInsufficientFunds is a constructor for InsufficientError wrapping ErrInsufficientFunds.
func NewInsufficientFunds(need, have int64) *InsufficientError {
	return &InsufficientError{Sentinel: ErrInsufficientFunds, Need: need, Have: have}
}

// NewInsufficientBalance is a constructor for InsufficientError wrapping ErrInsufficientBalance.
func NewInsufficientBalance(need, have int64) *InsufficientError {
	return &InsufficientError{Sentinel: ErrInsufficientBalance, Need: need, Have: have}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	return fmt.Sprintf("%s: need %d sat, have %d sat", e.Sentinel, e.Need, e.Have)
}

// Unwrap implements matching for [errors.Is].
func (e *InsufficientError) Unwrap() error {
	return e.Sentinel
}
