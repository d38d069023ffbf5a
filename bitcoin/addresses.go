// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ScriptType defines script type over which an address is built.
type ScriptType string

const (
	// P2PK defines P2PK (public key) script type.
	P2PK ScriptType = "P2PK"
	// P2PKH defines P2PKH (public key hash) script type.
	P2PKH ScriptType = "P2PKH"
	// P2SH defines P2SH (script hash) script type, treated as nested segwit.
	P2SH ScriptType = "P2SH"
	// P2WPKH defines P2WPKH (witness public key hash) script type.
	P2WPKH ScriptType = "P2WPKH"
	// P2WSH defines P2WSH (witness script hash) script type.
	P2WSH ScriptType = "P2WSH"
	// P2TR defines P2TR (taproot) script type.
	P2TR ScriptType = "P2TR"
)

// bech32 human-readable prefixes per network.
var bech32Prefixes = []string{"bc1", "tb1", "bcrt1"}

// ClassifyAddress determines the script type from the address encoding alone:
// taproot for bc1p/tb1p, segwit-v0 for bc1q/tb1q (length distinguishes
// P2WPKH from P2WSH), nested segwit for "3"/"2"-prefixed, legacy otherwise.
func ClassifyAddress(address string) (ScriptType, error) {
	if address == "" {
		return "", ErrUnknownScriptType
	}

	lower := strings.ToLower(address)
	for _, hrp := range bech32Prefixes {
		if !strings.HasPrefix(lower, hrp) {
			continue
		}
		if len(lower) == len(hrp) {
			return "", ErrUnknownScriptType
		}

		switch lower[len(hrp)] {
		case 'p':
			return P2TR, nil
		case 'q':
			// 20-byte witness program encodes shorter than 32-byte one.
			if len(lower) >= len(hrp)+59 {
				return P2WSH, nil
			}

			return P2WPKH, nil
		default:
			return "", ErrUnknownScriptType
		}
	}

	switch address[0] {
	case '3', '2':
		return P2SH, nil
	case '1', 'm', 'n':
		return P2PKH, nil
	}

	return "", ErrUnknownScriptType
}

// ValidateAddress fully decodes the address against the network, checksum
// included, and returns its script type. ClassifyAddress alone is prefix-based
// and accepts malformed strings, so user-provided addresses go through here.
func ValidateAddress(address string, networkParams *chaincfg.Params) (ScriptType, error) {
	if _, err := btcutil.DecodeAddress(address, networkParams); err != nil {
		return "", fmt.Errorf("%q: %w", address, ErrUnknownScriptType)
	}

	return ClassifyAddress(address)
}

// IsSegwit returns true for script types spending with witness data. Nested
// P2SH is counted since only P2SH-P2WPKH spends are constructed here.
func IsSegwit(t ScriptType) bool {
	switch t {
	case P2TR, P2WPKH, P2WSH, P2SH:
		return true
	}

	return false
}
