// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// ParsePsbt decodes a serialized PSBT from hex or base64 encoding.
func ParsePsbt(data string) (*psbt.Packet, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("psbt is neither hex nor base64: %w", err)
		}
	}

	return psbt.NewFromRawBytes(bytes.NewReader(raw), false)
}

// ExtractInput recovers the spent output data of the input at the given
// index: txid, vout and value with the address derived from the locking
// script. The value and script come from the witness-UTXO field or from
// the embedded previous transaction for legacy inputs.
func (b *Builder) ExtractInput(packet *psbt.Packet, index int) (*bitcoin.UTXO, error) {
	if index < 0 || index >= len(packet.Inputs) {
		return nil, fmt.Errorf("input index %d is out of range [0;%d)", index, len(packet.Inputs))
	}

	var (
		input    = packet.Inputs[index]
		outPoint = packet.UnsignedTx.TxIn[index].PreviousOutPoint
		prevOut  *wire.TxOut
	)
	switch {
	case input.WitnessUtxo != nil:
		prevOut = input.WitnessUtxo
	case input.NonWitnessUtxo != nil:
		if int(outPoint.Index) >= len(input.NonWitnessUtxo.TxOut) {
			return nil, fmt.Errorf("input %d: previous transaction has no output %d", index, outPoint.Index)
		}

		prevOut = input.NonWitnessUtxo.TxOut[outPoint.Index]
	default:
		return nil, fmt.Errorf("input %d carries no previous output data", index)
	}

	address, err := b.scriptAddress(prevOut.PkScript)
	if err != nil {
		return nil, fmt.Errorf("input %d: %w", index, err)
	}

	return &bitcoin.UTXO{
		TxID:    outPoint.Hash.String(),
		Index:   outPoint.Index,
		Value:   prevOut.Value,
		Address: address,
	}, nil
}

// scriptAddress derives the address encoding of the locking script,
// covering P2TR/P2WPKH/P2WSH/P2SH/P2PKH/P2PK/P2MS script classes.
func (b *Builder) scriptAddress(pkScript []byte) (string, error) {
	scriptClass, addresses, _, err := txscript.ExtractPkScriptAddrs(pkScript, b.networkParams)
	if err != nil {
		return "", err
	}
	if scriptClass == txscript.NonStandardTy || len(addresses) == 0 {
		return "", bitcoin.ErrUnknownScriptType
	}

	return addresses[0].EncodeAddress(), nil
}

// ValidateSignatures reports whether every input looks signed: a partial
// signature, a taproot key-path or script-path signature, or populated
// witness-UTXO data. This is a necessary-not-sufficient check — the
// presence of witnessUtxo alone does not prove a valid signature exists,
// so callers must still attempt finalization before relying on it.
func ValidateSignatures(packet *psbt.Packet) bool {
	for _, input := range packet.Inputs {
		switch {
		case len(input.PartialSigs) > 0:
		case len(input.TaprootKeySpendSig) > 0:
		case len(input.TaprootScriptSpendSig) > 0:
		case input.WitnessUtxo != nil:
		default:
			return false
		}
	}

	return len(packet.Inputs) > 0
}
