// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package gormstore implements order persistence over GORM, letting the
// orchestrator run on sqlite in tests and single-node deployments and on
// any other GORM-supported database in production.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/BoostyLabs/alkamint/mint"
)

// Store implements mint.Store over a GORM database handle.
type Store struct {
	db *gorm.DB
}

// New is a constructor for Store. It migrates the schema on creation.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&orderRow{}, &itemRow{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

type orderRow struct {
	ID             string `gorm:"primaryKey"`
	Model          string
	AlkaneID       string
	MintAddress    string
	PaymentAddress string `gorm:"index"`
	PaymentPubKey  string
	ReceiveAddress string
	PaymentHash    string
	PaymentRawTx   string

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

	Status    string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (orderRow) TableName() string { return "orders" }

type itemRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	OrderID        string `gorm:"index"`
	InputUtxo      string
	TxSize         int64
	BatchIndex     int
	MintIndex      int
	ReceiveAddress string
	MintHash       string `gorm:"index"`
	RawTx          string
	Status         string `gorm:"index"`
	UpdatedAt      time.Time
}

func (itemRow) TableName() string { return "order_items" }

// CreateOrder implements mint.Store.
func (s *Store) CreateOrder(ctx context.Context, order *mint.Order) error {
	return s.db.WithContext(ctx).Create(toOrderRow(order)).Error
}

// GetOrder implements mint.Store.
func (s *Store) GetOrder(ctx context.Context, id string) (*mint.Order, error) {
	var row orderRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mint.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return fromOrderRow(&row), nil
}

// UpdateOrder implements mint.Store.
func (s *Store) UpdateOrder(ctx context.Context, order *mint.Order) error {
	return s.db.WithContext(ctx).Save(toOrderRow(order)).Error
}

// UpdateOrderStatus implements mint.Store. The update is conditional on the
// current status so racing workers cannot move an order backwards.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to mint.OrderStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})

	return res.RowsAffected > 0, res.Error
}

// ListOrdersByStatus implements mint.Store.
func (s *Store) ListOrdersByStatus(ctx context.Context, status mint.OrderStatus, limit int) ([]mint.Order, error) {
	var rows []orderRow
	err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	orders := make([]mint.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, *fromOrderRow(&rows[i]))
	}

	return orders, nil
}

// SaveOrderWithItems implements mint.Store.
func (s *Store) SaveOrderWithItems(ctx context.Context, order *mint.Order, items []*mint.Item) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(toOrderRow(order)).Error; err != nil {
			return err
		}

		for _, item := range items {
			row := toItemRow(item)
			if err := tx.Save(row).Error; err != nil {
				return err
			}

			// propagate generated ids back to the caller.
			item.ID = row.ID
		}

		return nil
	})
}

// ListItems implements mint.Store.
func (s *Store) ListItems(ctx context.Context, orderID string) ([]mint.Item, error) {
	var rows []itemRow
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("batch_index, mint_index").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]mint.Item, 0, len(rows))
	for i := range rows {
		items = append(items, *fromItemRow(&rows[i]))
	}

	return items, nil
}

// UpdateItem implements mint.Store.
func (s *Store) UpdateItem(ctx context.Context, item *mint.Item) error {
	return s.db.WithContext(ctx).Save(toItemRow(item)).Error
}

// UpdateItemStatus implements mint.Store.
func (s *Store) UpdateItemStatus(ctx context.Context, id int64, from, to mint.ItemStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&itemRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})

	return res.RowsAffected > 0, res.Error
}

func toOrderRow(order *mint.Order) *orderRow {
	return &orderRow{
		ID:             order.ID,
		Model:          string(order.Model),
		AlkaneID:       order.AlkaneID,
		MintAddress:    order.MintAddress,
		PaymentAddress: order.PaymentAddress,
		PaymentPubKey:  order.PaymentPubKey,
		ReceiveAddress: order.ReceiveAddress,
		PaymentHash:    order.PaymentHash,
		PaymentRawTx:   order.PaymentRawTx,

		Feerate:       order.Feerate,
		LatestFeerate: order.LatestFeerate,
		MaxFeerate:    order.MaxFeerate,

		Prepaid:    order.Prepaid,
		Change:     order.Change,
		Postage:    order.Postage,
		ServiceFee: order.ServiceFee,
		NetworkFee: order.NetworkFee,
		TotalFee:   order.TotalFee,

		MintAmount:      order.MintAmount,
		SubmittedAmount: order.SubmittedAmount,
		CompletedAmount: order.CompletedAmount,

		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func fromOrderRow(row *orderRow) *mint.Order {
	return &mint.Order{
		ID:             row.ID,
		Model:          mint.OrderModel(row.Model),
		AlkaneID:       row.AlkaneID,
		MintAddress:    row.MintAddress,
		PaymentAddress: row.PaymentAddress,
		PaymentPubKey:  row.PaymentPubKey,
		ReceiveAddress: row.ReceiveAddress,
		PaymentHash:    row.PaymentHash,
		PaymentRawTx:   row.PaymentRawTx,

		Feerate:       row.Feerate,
		LatestFeerate: row.LatestFeerate,
		MaxFeerate:    row.MaxFeerate,

		Prepaid:    row.Prepaid,
		Change:     row.Change,
		Postage:    row.Postage,
		ServiceFee: row.ServiceFee,
		NetworkFee: row.NetworkFee,
		TotalFee:   row.TotalFee,

		MintAmount:      row.MintAmount,
		SubmittedAmount: row.SubmittedAmount,
		CompletedAmount: row.CompletedAmount,

		Status:    mint.OrderStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toItemRow(item *mint.Item) *itemRow {
	return &itemRow{
		ID:             item.ID,
		OrderID:        item.OrderID,
		InputUtxo:      item.InputUtxo,
		TxSize:         item.TxSize,
		BatchIndex:     item.BatchIndex,
		MintIndex:      item.MintIndex,
		ReceiveAddress: item.ReceiveAddress,
		MintHash:       item.MintHash,
		RawTx:          item.RawTx,
		Status:         string(item.Status),
		UpdatedAt:      item.UpdatedAt,
	}
}

func fromItemRow(row *itemRow) *mint.Item {
	return &mint.Item{
		ID:             row.ID,
		OrderID:        row.OrderID,
		InputUtxo:      row.InputUtxo,
		TxSize:         row.TxSize,
		BatchIndex:     row.BatchIndex,
		MintIndex:      row.MintIndex,
		ReceiveAddress: row.ReceiveAddress,
		MintHash:       row.MintHash,
		RawTx:          row.RawTx,
		Status:         mint.ItemStatus(row.Status),
		UpdatedAt:      row.UpdatedAt,
	}
}
