// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BoostyLabs/alkamint/bitcoin/chain"
)

// ErrQueueClosed indicates an enqueue after Shutdown.
var ErrQueueClosed = errors.New("broadcast queue is closed")

// BroadcastJob is a unit of broadcast work. Sequential jobs carry a chain of
// items where each transaction spends the previous one's output, so their
// order on the wire matters; independent jobs may be pushed concurrently.
type BroadcastJob struct {
	OrderID    string
	Items      []Item
	Sequential bool
}

// BroadcastQueue serializes transaction submission. A single consumer drains
// the job channel: sequential jobs are pushed in-line item by item, aborting
// the remainder on a fatal rejection, while independent jobs fan out over a
// bounded worker pool.
type BroadcastQueue struct {
	log         *slog.Logger
	store       Store
	broadcaster chain.Broadcaster
	concurrency int

	jobs chan BroadcastJob
	done chan struct{}
	wg   sync.WaitGroup

	closeMu sync.Mutex
	senders sync.WaitGroup
	closed  bool

	broadcastTotal *prometheus.CounterVec
}

// NewBroadcastQueue is a constructor for BroadcastQueue.
func NewBroadcastQueue(log *slog.Logger, store Store, broadcaster chain.Broadcaster, concurrency int, registerer prometheus.Registerer) *BroadcastQueue {
	broadcastTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alkamint",
			Name:      "broadcast_total",
			Help:      "Transaction broadcast attempts by outcome.",
		},
		[]string{"outcome"},
	)
	if registerer != nil {
		registerer.MustRegister(broadcastTotal)
	}

	return &BroadcastQueue{
		log:            log.With("component", "broadcast-queue"),
		store:          store,
		broadcaster:    broadcaster,
		concurrency:    concurrency,
		jobs:           make(chan BroadcastJob, 256),
		done:           make(chan struct{}),
		broadcastTotal: broadcastTotal,
	}
}

// Enqueue schedules a job. Returns ErrQueueClosed after Shutdown. The send
// happens outside the close mutex, so a full channel never blocks Shutdown.
func (q *BroadcastQueue) Enqueue(ctx context.Context, job BroadcastJob) error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.closeMu.Unlock()
	defer q.senders.Done()

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes jobs until Shutdown. Call it in its own goroutine.
func (q *BroadcastQueue) Run(ctx context.Context) {
	sem := make(chan struct{}, q.concurrency)

	for job := range q.jobs {
		if job.Sequential {
			q.runSequential(ctx, job)
			continue
		}

		for _, item := range job.Items {
			item := item
			sem <- struct{}{}
			q.wg.Add(1)
			go func() {
				defer func() { <-sem; q.wg.Done() }()
				_ = q.pushItem(ctx, job.OrderID, item)
			}()
		}
	}

	q.wg.Wait()
}

// Shutdown stops accepting jobs and lets Run drain the remaining ones.
// Blocked senders are released before the channel closes.
func (q *BroadcastQueue) Shutdown() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.closeMu.Unlock()

	q.senders.Wait()
	close(q.jobs)
}

// runSequential pushes a chained batch in mint-index order. The first fatal
// rejection aborts the rest of the chain, they would be orphans anyway.
func (q *BroadcastQueue) runSequential(ctx context.Context, job BroadcastJob) {
	for _, item := range job.Items {
		if err := q.pushItem(ctx, job.OrderID, item); err != nil {
			q.log.Error("chain broadcast aborted",
				"order", job.OrderID, "batch", item.BatchIndex, "mint_index", item.MintIndex, "error", err)
			return
		}
	}
}

func (q *BroadcastQueue) pushItem(ctx context.Context, orderID string, item Item) error {
	outcome := q.broadcaster.Push(ctx, item.RawTx)
	q.broadcastTotal.WithLabelValues(outcome.Status.String()).Inc()

	if outcome.Fatal() {
		q.log.Error("transaction rejected",
			"order", orderID, "tx", item.MintHash, "reason", outcome.Reason)
		return ErrNetworkRejected
	}

	// Accepted or already known: either way the transaction is in flight.
	if _, err := q.store.UpdateItemStatus(ctx, item.ID, ItemWaiting, ItemMinting); err != nil {
		q.log.Error("item status update failed", "order", orderID, "item", item.ID, "error", err)
		return err
	}

	q.log.Debug("transaction submitted", "order", orderID, "tx", item.MintHash, "outcome", outcome.Status)

	return nil
}
