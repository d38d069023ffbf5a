// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package fees_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
)

const (
	p2wpkhAddr = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	p2trAddr   = "bc1pmfr3p9j00pfxjh0zmgp99y8zftmd3s5pmedqhyptwy6lm87hf5sspknck9"
	p2shAddr   = "3P14159f73E4gFr7JterCCQh9QjiTjiZrG"
	p2pkhAddr  = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
)

func TestEstimateSize(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []fees.InputDescriptor
		outputs []fees.OutputDescriptor
		size    int64
	}{
		{
			// 10 base + 68 + 31*2 + 2 segwit header.
			name:   "p2wpkh to two p2wpkh",
			inputs: []fees.InputDescriptor{{Address: p2wpkhAddr}},
			outputs: []fees.OutputDescriptor{
				{Address: p2wpkhAddr},
				{Address: p2wpkhAddr},
			},
			size: 142,
		},
		{
			// 10 + 57.5 + 43 + 31 + 2 = 143.5, rounded up once at the end.
			name:   "taproot in, mixed out",
			inputs: []fees.InputDescriptor{{Address: p2trAddr}},
			outputs: []fees.OutputDescriptor{
				{Address: p2trAddr},
				{Address: p2wpkhAddr},
			},
			size: 144,
		},
		{
			// 10 + 148 + 34, no segwit header for a legacy-only spend.
			name:    "legacy only",
			inputs:  []fees.InputDescriptor{{Address: p2pkhAddr}},
			outputs: []fees.OutputDescriptor{{Address: p2pkhAddr}},
			size:    192,
		},
		{
			// data output of 10 raw bytes costs 8 + 1 + 11.
			name:   "data output",
			inputs: []fees.InputDescriptor{{Address: p2wpkhAddr}},
			outputs: []fees.OutputDescriptor{
				{Script: bytes.Repeat([]byte{0x6a}, 10)},
				{Address: p2wpkhAddr},
			},
			size: 131,
		},
		{
			name: "mixed witness and legacy inputs",
			inputs: []fees.InputDescriptor{
				{Address: p2wpkhAddr},
				{Address: p2pkhAddr},
			},
			outputs: []fees.OutputDescriptor{{Address: p2trAddr}},
			size:    271,
		},
		{
			name:    "type overrides address",
			inputs:  []fees.InputDescriptor{{Type: bitcoin.P2WPKH}},
			outputs: []fees.OutputDescriptor{{Type: bitcoin.P2WPKH}, {Type: bitcoin.P2WPKH}},
			size:    142,
		},
		{
			name:    "nested segwit input",
			inputs:  []fees.InputDescriptor{{Address: p2shAddr}},
			outputs: []fees.OutputDescriptor{{Address: p2wpkhAddr}},
			size:    134, // 10 + 91 + 31 + 2.
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			size, err := fees.EstimateSize(test.inputs, test.outputs)
			require.NoError(t, err)
			require.Equal(t, test.size, size)
		})
	}

	t.Run("unknown address", func(t *testing.T) {
		_, err := fees.EstimateSize(
			[]fees.InputDescriptor{{Address: "what-is-this"}},
			[]fees.OutputDescriptor{{Address: p2wpkhAddr}},
		)
		require.ErrorIs(t, err, bitcoin.ErrUnknownScriptType)
	})

	t.Run("extra output grows the size", func(t *testing.T) {
		inputs := []fees.InputDescriptor{{Address: p2wpkhAddr}}
		one, err := fees.EstimateSize(inputs, []fees.OutputDescriptor{{Address: p2wpkhAddr}})
		require.NoError(t, err)

		two, err := fees.EstimateSize(inputs, []fees.OutputDescriptor{{Address: p2wpkhAddr}, {Address: p2wpkhAddr}})
		require.NoError(t, err)
		require.Greater(t, two, one)
	})
}

func TestInputSize(t *testing.T) {
	tests := []struct {
		address string
		size    float64
	}{
		{p2trAddr, 57.5},
		{p2wpkhAddr, 68},
		{p2shAddr, 91},
		{p2pkhAddr, 148},
	}
	for _, test := range tests {
		size, err := fees.InputSize(test.address)
		require.NoError(t, err)
		require.Equal(t, test.size, size)
	}

	_, err := fees.InputSize("")
	require.ErrorIs(t, err, bitcoin.ErrUnknownScriptType)
}

func TestOutputFee(t *testing.T) {
	// p2wpkh output is 31 vB: 8 value + 1 varint + 22 script.
	fee, err := fees.OutputFee(p2wpkhAddr, 2)
	require.NoError(t, err)
	require.EqualValues(t, 62, fee)

	// fractional rate rounds up.
	fee, err = fees.OutputFee(p2trAddr, 1.1)
	require.NoError(t, err)
	require.EqualValues(t, 48, fee) // ceil(43 * 1.1) = ceil(47.3).
}

func TestFee(t *testing.T) {
	require.EqualValues(t, 142, fees.Fee(142, 1))
	require.EqualValues(t, 11, fees.Fee(10.1, 1))
	require.EqualValues(t, 250, fees.Fee(100, 2.5))
	require.EqualValues(t, 72, fees.Fee(57.5, 1.25)) // ceil(71.875).
}
