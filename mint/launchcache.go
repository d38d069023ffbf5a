// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/BoostyLabs/alkamint/alkanes"
)

// ErrLaunchNotFound indicates the requested alkane is not an active launch.
var ErrLaunchNotFound = errors.New("launch not found")

// LaunchInfo describes a mintable alkane launch.
type LaunchInfo struct {
	AlkaneID alkanes.AlkaneID
	Name     string
	// AuthMint marks launches that require the auth-mint opcode instead of
	// the open mint one. AuthToken carries the launch's auth discriminator.
	AuthMint  bool
	AuthToken *big.Int
	// Live reports whether minting is currently open.
	Live bool
}

// LaunchLoader fetches the current launch set from an indexer.
type LaunchLoader func(ctx context.Context) (map[string]LaunchInfo, error)

// LaunchCache is a periodically refreshed snapshot of active launches. It is
// constructed and refreshed explicitly by the owner, never lazily.
type LaunchCache struct {
	log      *slog.Logger
	loader   LaunchLoader
	interval time.Duration

	mu       sync.RWMutex
	launches map[string]LaunchInfo

	done     chan struct{}
	shutdown sync.Once
}

// NewLaunchCache is a constructor for LaunchCache.
func NewLaunchCache(log *slog.Logger, loader LaunchLoader, interval time.Duration) *LaunchCache {
	return &LaunchCache{
		log:      log.With("component", "launch-cache"),
		loader:   loader,
		interval: interval,
		launches: make(map[string]LaunchInfo),
		done:     make(chan struct{}),
	}
}

// Init performs the initial synchronous load. The cache serves requests only
// after Init succeeds.
func (c *LaunchCache) Init(ctx context.Context) error {
	return c.refresh(ctx)
}

// Run refreshes the cache on the configured interval until the context is
// cancelled or Shutdown is called. Refresh failures keep the previous
// snapshot.
func (c *LaunchCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				c.log.Warn("launch refresh failed", "error", err)
			}
		}
	}
}

// Shutdown stops the refresh loop.
func (c *LaunchCache) Shutdown() {
	c.shutdown.Do(func() { close(c.done) })
}

// Get returns the live launch by alkane id, ErrLaunchNotFound when the id is
// unknown or minting is closed.
func (c *LaunchCache) Get(alkaneID string) (LaunchInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	launch, ok := c.launches[alkaneID]
	if !ok || !launch.Live {
		return LaunchInfo{}, ErrLaunchNotFound
	}

	return launch, nil
}

// Lookup returns the launch regardless of its live flag. In-flight orders
// keep minting after the launch closes to the public.
func (c *LaunchCache) Lookup(alkaneID string) (LaunchInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	launch, ok := c.launches[alkaneID]
	if !ok {
		return LaunchInfo{}, ErrLaunchNotFound
	}

	return launch, nil
}

func (c *LaunchCache) refresh(ctx context.Context) error {
	launches, err := c.loader(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.launches = launches
	c.mu.Unlock()

	c.log.Debug("launches refreshed", "count", len(launches))

	return nil
}
