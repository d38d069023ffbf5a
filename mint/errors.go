// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"errors"
)

// ErrOrderNotFound defines that the requested order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidOrderState defines that the action is not permitted in the
// order's current status.
var ErrInvalidOrderState = errors.New("invalid order state")

// ErrUnauthorizedOrderAccess defines a caller address mismatch.
var ErrUnauthorizedOrderAccess = errors.New("unauthorized order access")

// ErrFeerateExceedsMax defines that the requested fee rate is above the
// prepaid acceleration ceiling.
var ErrFeerateExceedsMax = errors.New("fee rate exceeds the order maximum")

// ErrRbfReplaced defines that a watched transaction was replaced on chain,
// invalidating the order.
var ErrRbfReplaced = errors.New("transaction replaced by fee bump")

// ErrNetworkRejected defines a fatal broadcast rejection.
var ErrNetworkRejected = errors.New("network rejected transaction")

// ErrLockHeld defines that another worker holds the per-order lock.
var ErrLockHeld = errors.New("lock is held")

// ErrUnsignedPsbt defines that the provided container misses signatures.
var ErrUnsignedPsbt = errors.New("psbt is not fully signed")

// ErrInvalidParams defines a request with out-of-range fields.
var ErrInvalidParams = errors.New("invalid order parameters")
