// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/mint"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	locker := mint.NewMemoryLocker()

	t.Run("held key is rejected", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)

		go func() {
			done <- locker.WithLock(ctx, "order-1", func(context.Context) error {
				close(entered)
				<-release
				return nil
			})
		}()
		<-entered

		err := locker.WithLock(ctx, "order-1", func(context.Context) error {
			t.Error("must not run under a held lock")
			return nil
		})
		require.ErrorIs(t, err, mint.ErrLockHeld)

		// a different key is independent.
		require.NoError(t, locker.WithLock(ctx, "order-2", func(context.Context) error {
			return nil
		}))

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("released after the callback", func(t *testing.T) {
		require.NoError(t, locker.WithLock(ctx, "order-1", func(context.Context) error {
			return nil
		}))
		require.NoError(t, locker.WithLock(ctx, "order-1", func(context.Context) error {
			return nil
		}))
	})

	t.Run("propagates the callback error and releases", func(t *testing.T) {
		boom := errors.New("boom")
		err := locker.WithLock(ctx, "order-3", func(context.Context) error {
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, locker.WithLock(ctx, "order-3", func(context.Context) error {
			return nil
		}))
	})
}
