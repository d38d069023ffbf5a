// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"context"
)

// Store abstracts order/item persistence. Status updates are conditional
// (update-where-current-status-equals-expected) so concurrent orchestration
// paths cannot race an order backwards.
type Store interface {
	// CreateOrder inserts a new order.
	CreateOrder(ctx context.Context, order *Order) error
	// GetOrder returns the order by id, ErrOrderNotFound when missing.
	GetOrder(ctx context.Context, id string) (*Order, error)
	// UpdateOrder saves all mutable order fields.
	UpdateOrder(ctx context.Context, order *Order) error
	// UpdateOrderStatus transitions the order from the expected status,
	// reporting whether the conditional update took effect.
	UpdateOrderStatus(ctx context.Context, id string, from, to OrderStatus) (bool, error)
	// ListOrdersByStatus returns up to limit orders in the given status.
	ListOrdersByStatus(ctx context.Context, status OrderStatus, limit int) ([]Order, error)

	// SaveOrderWithItems atomically persists the order together with
	// created or updated items.
	SaveOrderWithItems(ctx context.Context, order *Order, items []*Item) error
	// ListItems returns all items of the order ordered by batch and mint
	// index.
	ListItems(ctx context.Context, orderID string) ([]Item, error)
	// UpdateItem saves all mutable item fields.
	UpdateItem(ctx context.Context, item *Item) error
	// UpdateItemStatus transitions the item from the expected status,
	// reporting whether the conditional update took effect.
	UpdateItemStatus(ctx context.Context, id int64, from, to ItemStatus) (bool, error)
}
