// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"fmt"
	"strconv"
	"strings"
)

// DustLimit defines the smallest output value in satoshi that is relayed
// by the network for standard scripts.
const DustLimit int64 = 546

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxID    string
	Index   uint32 // output index in transaction outputs.
	Value   int64  // in Satoshi.
	Address string // output recipient address.
	PubKey  string // optional owner public key in hex.
	Height  int64  // confirmation height, 0 for unconfirmed.
	TapLeaf *TapLeaf
}

// TapLeaf holds taproot script-path spend data for whitelist-gated inputs.
type TapLeaf struct {
	Script       []byte
	ControlBlock []byte
}

// OutPoint returns UTXO reference in "txid:vout" form.
func (u UTXO) OutPoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Index)
}

// Output describes a transaction output to build. Either Address with Value
// is set, or Script holds raw data-carrying script bytes with Value = 0.
type Output struct {
	Address string
	Script  []byte
	Value   int64
}

// IsData returns true for data-carrying (OP_RETURN-style) outputs.
func (o Output) IsData() bool {
	return len(o.Script) > 0
}

// ParseOutPoint parses "txid:vout:value" reference into its parts.
func ParseOutPoint(ref string) (txid string, vout uint32, value int64, err error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed outpoint reference %q", ref)
	}

	v, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed outpoint vout %q: %w", ref, err)
	}

	value, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed outpoint value %q: %w", ref, err)
	}

	return parts[0], uint32(v), value, nil
}

// FormatOutPoint returns "txid:vout:value" reference.
func FormatOutPoint(txid string, vout uint32, value int64) string {
	return fmt.Sprintf("%s:%d:%d", txid, vout, value)
}
