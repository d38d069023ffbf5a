// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// ServiceFeeConfig defines the tiered service fee schedule keyed on batch
// count. Single-batch orders pay per mint with a cap; multi-batch orders
// pay flat per batch, cheaper as batch count grows.
type ServiceFeeConfig struct {
	PerMint            int64 `yaml:"perMint"            envconfig:"SERVICE_FEE_PER_MINT"`
	SingleBatchCap     int64 `yaml:"singleBatchCap"     envconfig:"SERVICE_FEE_SINGLE_BATCH_CAP"`
	SmallMultiPerBatch int64 `yaml:"smallMultiPerBatch" envconfig:"SERVICE_FEE_SMALL_MULTI_PER_BATCH"`
	Tier4PerBatch      int64 `yaml:"tier4PerBatch"      envconfig:"SERVICE_FEE_TIER4_PER_BATCH"`
	Tier20PerBatch     int64 `yaml:"tier20PerBatch"     envconfig:"SERVICE_FEE_TIER20_PER_BATCH"`
	Tier40PerBatch     int64 `yaml:"tier40PerBatch"     envconfig:"SERVICE_FEE_TIER40_PER_BATCH"`
}

// ForOrder returns the service fee in satoshi for the given mint amount and
// its batch split.
func (c ServiceFeeConfig) ForOrder(mintAmount, batches int) int64 {
	switch {
	case batches <= 1:
		return min(c.PerMint*int64(mintAmount), c.SingleBatchCap)
	case batches >= 40:
		return c.Tier40PerBatch * int64(batches)
	case batches >= 20:
		return c.Tier20PerBatch * int64(batches)
	case batches >= 4:
		return c.Tier4PerBatch * int64(batches)
	default:
		return c.SmallMultiPerBatch * int64(batches)
	}
}

// Config holds the orchestrator configuration.
type Config struct {
	Network               string           `yaml:"network"               envconfig:"NETWORK"`
	EsploraURL            string           `yaml:"esploraURL"            envconfig:"ESPLORA_URL"`
	RevenueAddress        string           `yaml:"revenueAddress"        envconfig:"REVENUE_ADDRESS"`
	Postage               int64            `yaml:"postage"               envconfig:"POSTAGE"`
	BatchSize             int              `yaml:"batchSize"             envconfig:"BATCH_SIZE"`
	BroadcastConcurrency  int              `yaml:"broadcastConcurrency"  envconfig:"BROADCAST_CONCURRENCY"`
	ScanInterval          time.Duration    `yaml:"scanInterval"          envconfig:"SCAN_INTERVAL"`
	LaunchRefreshInterval time.Duration    `yaml:"launchRefreshInterval" envconfig:"LAUNCH_REFRESH_INTERVAL"`
	ServiceFee            ServiceFeeConfig `yaml:"serviceFee"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Network:               "mainnet",
		Postage:               bitcoin.DustLimit,
		BatchSize:             25,
		BroadcastConcurrency:  4,
		ScanInterval:          30 * time.Second,
		LaunchRefreshInterval: 5 * time.Minute,
		ServiceFee: ServiceFeeConfig{
			PerMint:            300,
			SingleBatchCap:     5000,
			SmallMultiPerBatch: 4500,
			Tier4PerBatch:      4000,
			Tier20PerBatch:     3500,
			Tier40PerBatch:     3000,
		},
	}
}

// LoadConfig loads configuration from the optional yaml file, applies
// ALKAMINT_* environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err = yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("alkamint", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.NetworkParams() == nil {
		return fmt.Errorf("unknown network %q", c.Network)
	}
	if c.RevenueAddress == "" {
		return errors.New("revenue address is required")
	}
	if _, err := bitcoin.ValidateAddress(c.RevenueAddress, c.NetworkParams()); err != nil {
		return fmt.Errorf("revenue address: %w", err)
	}
	if c.Postage < bitcoin.DustLimit {
		return fmt.Errorf("postage %d is below the dust limit", c.Postage)
	}
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("batch size %d is out of range [1;100]", c.BatchSize)
	}
	if c.BroadcastConcurrency < 1 {
		return fmt.Errorf("broadcast concurrency %d must be positive", c.BroadcastConcurrency)
	}
	if c.ScanInterval <= 0 || c.LaunchRefreshInterval <= 0 {
		return errors.New("scan and launch refresh intervals must be positive")
	}

	fee := c.ServiceFee
	for _, v := range []int64{fee.PerMint, fee.SingleBatchCap, fee.SmallMultiPerBatch, fee.Tier4PerBatch, fee.Tier20PerBatch, fee.Tier40PerBatch} {
		if v < 0 {
			return errors.New("service fee values must be non-negative")
		}
	}

	return nil
}

// NetworkParams returns chain parameters of the configured network, nil
// when unknown.
func (c *Config) NetworkParams() *chaincfg.Params {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return nil
	}
}
