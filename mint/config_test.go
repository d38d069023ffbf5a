// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/mint"
)

const testRevenueAddress = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"

func validConfig() mint.Config {
	cfg := mint.DefaultConfig()
	cfg.Network = "testnet"
	cfg.RevenueAddress = testRevenueAddress

	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(cfg *mint.Config)
	}{
		{"unknown network", func(cfg *mint.Config) { cfg.Network = "litecoin" }},
		{"missing revenue address", func(cfg *mint.Config) { cfg.RevenueAddress = "" }},
		{"invalid revenue address", func(cfg *mint.Config) { cfg.RevenueAddress = "not-an-address" }},
		{"postage below dust", func(cfg *mint.Config) { cfg.Postage = 100 }},
		{"zero batch size", func(cfg *mint.Config) { cfg.BatchSize = 0 }},
		{"oversized batch", func(cfg *mint.Config) { cfg.BatchSize = 101 }},
		{"zero concurrency", func(cfg *mint.Config) { cfg.BroadcastConcurrency = 0 }},
		{"zero scan interval", func(cfg *mint.Config) { cfg.ScanInterval = 0 }},
		{"zero refresh interval", func(cfg *mint.Config) { cfg.LaunchRefreshInterval = 0 }},
		{"negative service fee", func(cfg *mint.Config) { cfg.ServiceFee.PerMint = -1 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bad := validConfig()
			test.mutate(&bad)
			require.Error(t, bad.Validate())
		})
	}
}

func TestNetworkParams(t *testing.T) {
	tests := []struct {
		network string
		want    *chaincfg.Params
	}{
		{"mainnet", &chaincfg.MainNetParams},
		{"testnet", &chaincfg.TestNet3Params},
		{"testnet3", &chaincfg.TestNet3Params},
		{"signet", &chaincfg.SigNetParams},
		{"regtest", &chaincfg.RegressionNetParams},
		{"unknown", nil},
	}
	for _, test := range tests {
		cfg := mint.Config{Network: test.network}
		require.Equal(t, test.want, cfg.NetworkParams(), test.network)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
network: testnet
revenueAddress: ` + testRevenueAddress + `
batchSize: 10
scanInterval: 15s
serviceFee:
  perMint: 250
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := mint.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, 10, cfg.BatchSize)
	require.Equal(t, 15*time.Second, cfg.ScanInterval)
	require.EqualValues(t, 250, cfg.ServiceFee.PerMint)
	// untouched fields keep their defaults.
	require.EqualValues(t, 5000, cfg.ServiceFee.SingleBatchCap)

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("ALKAMINT_BATCH_SIZE", "7")

		cfg, err := mint.LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 7, cfg.BatchSize)
	})

	t.Run("invalid file fails validation", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("network: litecoin\n"), 0o600))

		_, err := mint.LoadConfig(bad)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := mint.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
