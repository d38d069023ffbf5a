// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/BoostyLabs/alkamint/alkanes"
	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/chain"
	"github.com/BoostyLabs/alkamint/mint"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory mint.Store for orchestration tests.
type memStore struct {
	mu     sync.Mutex
	orders map[string]mint.Order
	items  map[int64]mint.Item
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[string]mint.Order),
		items:  make(map[int64]mint.Item),
	}
}

func (s *memStore) CreateOrder(_ context.Context, order *mint.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("order %s exists", order.ID)
	}

	s.orders[order.ID] = *order

	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*mint.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, mint.ErrOrderNotFound
	}

	return &order, nil
}

func (s *memStore) UpdateOrder(_ context.Context, order *mint.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order

	return nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, id string, from, to mint.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}

	order.Status = to
	s.orders[id] = order

	return true, nil
}

func (s *memStore) ListOrdersByStatus(_ context.Context, status mint.OrderStatus, limit int) ([]mint.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mint.Order
	for _, order := range s.orders {
		if order.Status == status && len(out) < limit {
			out = append(out, order)
		}
	}

	return out, nil
}

func (s *memStore) SaveOrderWithItems(_ context.Context, order *mint.Order, items []*mint.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	for _, item := range items {
		if item.ID == 0 {
			s.nextID++
			item.ID = s.nextID
		}

		s.items[item.ID] = *item
	}

	return nil
}

func (s *memStore) ListItems(_ context.Context, orderID string) ([]mint.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mint.Item
	for _, item := range s.items {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BatchIndex != out[j].BatchIndex {
			return out[i].BatchIndex < out[j].BatchIndex
		}

		return out[i].MintIndex < out[j].MintIndex
	})

	return out, nil
}

func (s *memStore) UpdateItem(_ context.Context, item *mint.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item

	return nil
}

func (s *memStore) UpdateItemStatus(_ context.Context, id int64, from, to mint.ItemStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.Status != from {
		return false, nil
	}

	item.Status = to
	s.items[id] = item

	return true, nil
}

// fakeChain is a scriptable chain.Source.
type fakeChain struct {
	mu    sync.Mutex
	utxos map[string][]bitcoin.UTXO
	txs   map[string]*chain.Tx
	raw   map[string]string
	spent map[string]*chain.SpentInfo
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		utxos: make(map[string][]bitcoin.UTXO),
		txs:   make(map[string]*chain.Tx),
		raw:   make(map[string]string),
		spent: make(map[string]*chain.SpentInfo),
	}
}

func (f *fakeChain) GetTx(_ context.Context, txid string) (*chain.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.txs[txid], nil
}

func (f *fakeChain) GetTxHex(_ context.Context, txid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.raw[txid], nil
}

func (f *fakeChain) GetSpentInfo(_ context.Context, txid string, vout uint32) (*chain.SpentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.spent[fmt.Sprintf("%s:%d", txid, vout)], nil
}

func (f *fakeChain) ListUtxos(_ context.Context, address string, page int) ([]bitcoin.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page > 0 {
		return nil, nil
	}

	return f.utxos[address], nil
}

func (f *fakeChain) confirm(txid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[txid] = &chain.Tx{TxID: txid, Status: chain.TxStatus{Confirmed: true, BlockHeight: 1}}
}

func (f *fakeChain) markSpent(txid string, vout uint32, spender string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spent[fmt.Sprintf("%s:%d", txid, vout)] = &chain.SpentInfo{Spent: true, TxID: spender}
}

// fakeBroadcaster records pushes and answers via the classify hook.
type fakeBroadcaster struct {
	mu       sync.Mutex
	pushed   []string
	classify func(rawTx string) chain.BroadcastOutcome
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{}
}

func (f *fakeBroadcaster) Push(_ context.Context, rawTx string) chain.BroadcastOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, rawTx)
	if f.classify != nil {
		return f.classify(rawTx)
	}

	return chain.Accepted("")
}

func (f *fakeBroadcaster) pushes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.pushed...)
}

func testLaunches() map[string]mint.LaunchInfo {
	return map[string]mint.LaunchInfo{
		"2:17": {
			AlkaneID: alkanes.AlkaneID{Block: 2, Tx: 17},
			Name:     "TESTTOKEN",
			Live:     true,
		},
	}
}
