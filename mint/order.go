// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"time"
)

// OrderModel defines the minting strategy of an order.
type OrderModel string

const (
	// ModelNormal defines independent mint transactions, one funding
	// output each.
	ModelNormal OrderModel = "normal"
	// ModelMerge defines chained mint transactions where each
	// transaction's change funds the next.
	ModelMerge OrderModel = "merge"
)

// OrderStatus defines the lifecycle state of an order. Transitions are
// monotonic except the single partial -> cancelled escape.
type OrderStatus string

const (
	// StatusUnpaid defines a created order awaiting the funding payment.
	StatusUnpaid OrderStatus = "unpaid"
	// StatusPartial defines a funded order with remaining batches awaiting
	// funding confirmation.
	StatusPartial OrderStatus = "partial"
	// StatusMinting defines an order with all items submitted.
	StatusMinting OrderStatus = "minting"
	// StatusCompleted defines an order with all items confirmed.
	StatusCompleted OrderStatus = "completed"
	// StatusCancelled defines a cancelled order, reachable only from partial.
	StatusCancelled OrderStatus = "cancelled"
)

// rank orders statuses for the monotonic-progress invariant.
var statusRank = map[OrderStatus]int{
	StatusUnpaid:    0,
	StatusPartial:   1,
	StatusMinting:   2,
	StatusCompleted: 3,
}

// CanTransition reports whether moving from the current status to the next
// one respects the state machine.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if next == StatusCancelled {
		return s == StatusPartial
	}

	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]

	return okFrom && okTo && to > from
}

// ItemStatus defines the lifecycle state of a single mint item.
type ItemStatus string

const (
	// ItemWaiting defines a built item not yet submitted to the network.
	ItemWaiting ItemStatus = "waiting"
	// ItemMinting defines a submitted, unconfirmed item.
	ItemMinting ItemStatus = "minting"
	// ItemCompleted defines a chain-confirmed item.
	ItemCompleted ItemStatus = "completed"
)

// Order is a persisted mint order.
//
// Invariants: SubmittedAmount <= MintAmount, CompletedAmount <=
// SubmittedAmount; the ephemeral MintAddress key is never stored, it is
// re-derived from ID.
type Order struct {
	ID             string
	Model          OrderModel
	AlkaneID       string
	MintAddress    string // ephemeral script-controlled P2WPKH.
	PaymentAddress string
	PaymentPubKey  string
	ReceiveAddress string
	PaymentHash    string // funding transaction id.
	PaymentRawTx   string // funding transaction hex, kept for recovery.

	Feerate       float64
	LatestFeerate float64
	MaxFeerate    float64

	Prepaid    int64
	Change     int64
	Postage    int64
	ServiceFee int64
	NetworkFee int64
	TotalFee   int64

	MintAmount      int
	SubmittedAmount int
	CompletedAmount int

	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a persisted single mint transaction of an order.
//
// Invariant: within a batch, MintIndex 0..N-1 forms a strict chain — item
// i's input is item (i-1)'s sole non-zero-value output.
type Item struct {
	ID             int64
	OrderID        string
	InputUtxo      string // "txid:vout:value" of the spent output.
	TxSize         int64  // estimated virtual size in vBytes.
	BatchIndex     int
	MintIndex      int
	ReceiveAddress string
	MintHash       string // transaction id.
	RawTx          string // pre-built signed transaction hex.
	Status         ItemStatus
	UpdatedAt      time.Time
}

// SplitBatches splits the requested mint count into batches of the given
// size, the last one possibly shorter.
func SplitBatches(total, batchSize int) []int {
	if total <= 0 || batchSize <= 0 {
		return nil
	}

	batches := make([]int, 0, (total+batchSize-1)/batchSize)
	for total > 0 {
		n := min(total, batchSize)
		batches = append(batches, n)
		total -= n
	}

	return batches
}
