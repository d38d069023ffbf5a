// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package alkanes_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/alkanes"
)

func TestAlkaneID(t *testing.T) {
	t.Run("ParseAlkaneID", func(t *testing.T) {
		id, err := alkanes.ParseAlkaneID("2:17")
		require.NoError(t, err)
		require.Equal(t, alkanes.AlkaneID{Block: 2, Tx: 17}, id)
		require.Equal(t, "2:17", id.String())
	})

	t.Run("ParseAlkaneID (malformed)", func(t *testing.T) {
		for _, s := range []string{"", "2", "2:17:3", "a:1", "2:b", "-1:2"} {
			_, err := alkanes.ParseAlkaneID(s)
			require.Error(t, err, s)
		}
	})

	t.Run("ToIntSeq", func(t *testing.T) {
		id := alkanes.AlkaneID{Block: 840000, Tx: 5}
		require.Equal(t, []*big.Int{big.NewInt(840000), big.NewInt(5)}, id.ToIntSeq())
	})

	t.Run("Next", func(t *testing.T) {
		base := alkanes.AlkaneID{Block: 10, Tx: 20}

		// zero block delta shifts tx only.
		require.Equal(t, alkanes.AlkaneID{Block: 10, Tx: 25}, base.Next(alkanes.AlkaneID{Block: 0, Tx: 5}))

		// non-zero block delta resets tx to the absolute value.
		require.Equal(t, alkanes.AlkaneID{Block: 13, Tx: 5}, base.Next(alkanes.AlkaneID{Block: 3, Tx: 5}))
	})
}
