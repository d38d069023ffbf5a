// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package chain defines contracts for external chain-state collaborators:
// transaction lookups, the UTXO index and transaction broadcasting.
// A nil/empty result means "not yet observed" rather than an error.
package chain

import (
	"context"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// TxStatus describes chain confirmation state of a transaction.
type TxStatus struct {
	Confirmed   bool
	BlockHeight int64
}

// TxOut describes a single output of an observed transaction.
type TxOut struct {
	Value   int64
	Script  string // ScriptPubKey in hex.
	Address string
}

// Tx describes an observed transaction.
type Tx struct {
	TxID   string
	Status TxStatus
	Vout   []TxOut
}

// SpentInfo describes spending state of a specific output.
type SpentInfo struct {
	Spent bool
	TxID  string // spending transaction id, when known.
}

// Source provides chain data lookups. All methods return zero values with a
// nil error when the requested entity is not observed yet.
type Source interface {
	// GetTx returns transaction data by id, nil when unknown.
	GetTx(ctx context.Context, txid string) (*Tx, error)
	// GetTxHex returns raw transaction hex by id, empty when unknown.
	GetTxHex(ctx context.Context, txid string) (string, error)
	// GetSpentInfo returns spending state of the output, nil when unknown.
	GetSpentInfo(ctx context.Context, txid string, vout uint32) (*SpentInfo, error)
	// ListUtxos returns one page of unspent outputs for the address,
	// empty slice past the last page. Pages start from 0.
	ListUtxos(ctx context.Context, address string, page int) ([]bitcoin.UTXO, error)
}

// Broadcaster submits raw transactions to the network.
type Broadcaster interface {
	// Push submits raw transaction hex and reports the outcome. Transport
	// and rejection failures are carried inside the outcome.
	Push(ctx context.Context, rawTx string) BroadcastOutcome
}
