// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package fees

import (
	"math"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// Per-input virtual sizes in vBytes, witness-discount adjusted per BIP-141.
var inputVBytes = map[bitcoin.ScriptType]float64{
	bitcoin.P2TR:   57.5,
	bitcoin.P2WPKH: 68,
	bitcoin.P2SH:   91, // nested P2SH-P2WPKH.
	bitcoin.P2PKH:  148,
}

// Fixed output script lengths in bytes per script type.
var outputScriptLen = map[bitcoin.ScriptType]int{
	bitcoin.P2TR:   34,
	bitcoin.P2WPKH: 22,
	bitcoin.P2WSH:  34,
	bitcoin.P2SH:   23,
	bitcoin.P2PKH:  25,
}

// segwitHeaderVBytes covers the marker and flag bytes once any input spends
// with witness data.
const segwitHeaderVBytes = 2

// InputDescriptor describes a transaction input for size estimation.
// Type takes precedence when set, otherwise it is classified from Address.
type InputDescriptor struct {
	Address string
	Type    bitcoin.ScriptType
}

// OutputDescriptor describes a transaction output for size estimation.
// Script marks a data-carrying output; otherwise Type or Address defines
// a standard script.
type OutputDescriptor struct {
	Address string
	Script  []byte
	Type    bitcoin.ScriptType
}

// EstimateSize computes the estimated transaction virtual size in vBytes.
// The result is deterministic and must be the single source of size numbers
// for both UTXO selection and change computation, otherwise the two stages
// drift and the transaction either overpays or is rejected for low fee.
func EstimateSize(inputs []InputDescriptor, outputs []OutputDescriptor) (int64, error) {
	// version + locktime + input/output count varints.
	size := 8 + varIntLen(len(inputs)) + varIntLen(len(outputs))

	var segwit bool
	for _, in := range inputs {
		t, err := in.scriptType()
		if err != nil {
			return 0, err
		}

		vb, ok := inputVBytes[t]
		if !ok {
			return 0, bitcoin.ErrUnknownScriptType
		}

		size += vb
		segwit = segwit || bitcoin.IsSegwit(t)
	}

	for _, out := range outputs {
		scriptLen, err := out.scriptLen()
		if err != nil {
			return 0, err
		}

		size += 8 + varIntLen(scriptLen) + float64(scriptLen)
	}

	if segwit {
		size += segwitHeaderVBytes
	}

	return int64(math.Ceil(size)), nil
}

// InputSize returns the estimated virtual size of a single input spending
// from the given address, in vBytes.
func InputSize(address string) (float64, error) {
	t, err := bitcoin.ClassifyAddress(address)
	if err != nil {
		return 0, err
	}

	vb, ok := inputVBytes[t]
	if !ok {
		return 0, bitcoin.ErrUnknownScriptType
	}

	return vb, nil
}

// OutputFee returns the fee cost in satoshi of one extra output to the given
// address at the given fee rate.
func OutputFee(address string, feerate float64) (int64, error) {
	t, err := bitcoin.ClassifyAddress(address)
	if err != nil {
		return 0, err
	}

	scriptLen, ok := outputScriptLen[t]
	if !ok {
		return 0, bitcoin.ErrUnknownScriptType
	}

	return Fee(varIntLen(scriptLen)+float64(scriptLen)+8, feerate), nil
}

// Fee returns size * feerate rounded up to whole satoshi.
func Fee(size, feerate float64) int64 {
	return int64(math.Ceil(size * feerate))
}

// scriptType resolves the input script type.
func (in InputDescriptor) scriptType() (bitcoin.ScriptType, error) {
	if in.Type != "" {
		return in.Type, nil
	}

	return bitcoin.ClassifyAddress(in.Address)
}

// scriptLen resolves the output script length in bytes. Data-carrying
// scripts count their raw length plus one length-prefix byte.
func (out OutputDescriptor) scriptLen() (int, error) {
	if len(out.Script) > 0 {
		return len(out.Script) + 1, nil
	}

	t := out.Type
	if t == "" {
		var err error
		t, err = bitcoin.ClassifyAddress(out.Address)
		if err != nil {
			return 0, err
		}
	}

	scriptLen, ok := outputScriptLen[t]
	if !ok {
		return 0, bitcoin.ErrUnknownScriptType
	}

	return scriptLen, nil
}

// varIntLen returns serialized length of a compact size integer.
func varIntLen(n int) float64 {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
