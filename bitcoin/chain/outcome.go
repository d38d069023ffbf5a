// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"strings"
)

// BroadcastStatus defines broadcast submission result kind.
type BroadcastStatus int

const (
	// StatusAccepted defines that the transaction entered the mempool.
	StatusAccepted BroadcastStatus = iota
	// StatusAlreadyKnown defines a benign rejection: the transaction is
	// already present on the network, so the submission is an idempotent
	// no-op.
	StatusAlreadyKnown
	// StatusRejected defines a fatal rejection.
	StatusRejected
)

// String returns the status label.
func (s BroadcastStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusAlreadyKnown:
		return "already_known"
	default:
		return "rejected"
	}
}

// BroadcastOutcome is the result of a single broadcast attempt.
type BroadcastOutcome struct {
	Status BroadcastStatus
	TxID   string
	Reason string
}

// Accepted builds an outcome for a mempool-accepted transaction.
func Accepted(txid string) BroadcastOutcome {
	return BroadcastOutcome{Status: StatusAccepted, TxID: txid}
}

// Fatal returns true when the outcome must abort dependent submissions.
func (o BroadcastOutcome) Fatal() bool {
	return o.Status == StatusRejected
}

// benignPatterns lists rejection reason substrings that indicate the
// transaction is effectively already on the network.
var benignPatterns = []string{
	"already",
	"missing-or-spent",
	"mempool-conflict",
	"txn-already-known",
	"duplicate",
}

// ClassifyRejection folds a rejection reason into an outcome, mapping known
// benign reasons to StatusAlreadyKnown by substring match.
func ClassifyRejection(reason string) BroadcastOutcome {
	lower := strings.ToLower(reason)
	for _, pattern := range benignPatterns {
		if strings.Contains(lower, pattern) {
			return BroadcastOutcome{Status: StatusAlreadyKnown, Reason: reason}
		}
	}

	return BroadcastOutcome{Status: StatusRejected, Reason: reason}
}
