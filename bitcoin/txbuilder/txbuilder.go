// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/alkamint/bitcoin"
	"github.com/BoostyLabs/alkamint/bitcoin/chain"
	"github.com/BoostyLabs/alkamint/bitcoin/fees"
)

const (
	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// signHashType defines signature hash type for input signing.
	signHashType = txscript.SigHashAll
)

// SigningGroup lists input indexes that must be signed by the key owning
// the address. A transaction can mix funding and asset inputs owned by
// different keys, so indexes are grouped per address.
type SigningGroup struct {
	Address        string
	SigningIndexes []int
}

// UnsignedPsbtResult is a serialized unsigned transaction container with
// the computed fee and per-address signing index groups.
type UnsignedPsbtResult struct {
	Hex            string
	Base64         string
	Fee            int64
	SigningIndexes []SigningGroup
}

// Builder converts abstract UTXOs and outputs into unsigned PSBT packets.
type Builder struct {
	networkParams *chaincfg.Params
	chain         chain.Source
}

// NewBuilder is a constructor for Builder. The chain source is consulted
// only for legacy inputs that require the full previous transaction.
func NewBuilder(networkParams *chaincfg.Params, source chain.Source) *Builder {
	return &Builder{
		networkParams: networkParams,
		chain:         source,
	}
}

// CreateUnsignedPsbt builds an unsigned PSBT spending the given inputs to
// the given outputs, appending a change output when the leftover exceeds
// dust. Fee fitting is a bounded two-pass: the size is estimated once over
// the outputs plus a hypothetical change output, then the transaction is
// rebuilt exactly once with the resolved output set, which avoids
// off-by-one-output sizing drift. Change at or below dust is absorbed into
// the fee.
func (b *Builder) CreateUnsignedPsbt(ctx context.Context, inputs []bitcoin.UTXO, outputs []bitcoin.Output, changeAddress string, feerate float64) (*UnsignedPsbtResult, error) {
	var sumIn, sumOut int64
	inDescriptors := make([]fees.InputDescriptor, 0, len(inputs))
	for _, in := range inputs {
		sumIn += in.Value
		inDescriptors = append(inDescriptors, fees.InputDescriptor{Address: in.Address})
	}

	outDescriptors := make([]fees.OutputDescriptor, 0, len(outputs)+1)
	for _, out := range outputs {
		sumOut += out.Value
		outDescriptors = append(outDescriptors, fees.OutputDescriptor{Address: out.Address, Script: out.Script})
	}
	outDescriptors = append(outDescriptors, fees.OutputDescriptor{Address: changeAddress})

	size, err := fees.EstimateSize(inDescriptors, outDescriptors)
	if err != nil {
		return nil, err
	}

	fee := fees.Fee(float64(size), feerate)
	change := sumIn - sumOut - fee
	if change < 0 {
		return nil, bitcoin.NewInsufficientFunds(sumOut+fee, sumIn)
	}

	finalOutputs := outputs
	if change > bitcoin.DustLimit {
		finalOutputs = append(finalOutputs[:len(finalOutputs):len(finalOutputs)],
			bitcoin.Output{Address: changeAddress, Value: change})
	} else {
		// sub-dust change is cheaper to burn as fee than to carry.
		fee += change
	}

	packet, err := b.buildPacket(ctx, inputs, finalOutputs)
	if err != nil {
		return nil, err
	}

	return serializeResult(packet, fee, signingGroups(inputs))
}

// buildPacket assembles the unsigned transaction and populates per-input
// PSBT fields based on the script type of each spent address.
func (b *Builder) buildPacket(ctx context.Context, inputs []bitcoin.UTXO, outputs []bitcoin.Output) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(txVersion)
	for _, in := range inputs {
		utxoHash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("input txid %s: %w", in.TxID, err)
		}

		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(utxoHash, in.Index), nil, nil))
	}

	for _, out := range outputs {
		script := out.Script
		if !out.IsData() {
			var err error
			script, err = b.addressScript(out.Address)
			if err != nil {
				return nil, err
			}
		}

		tx.AddTxOut(wire.NewTxOut(out.Value, script))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}

	for i, in := range inputs {
		if err = b.prepareInput(ctx, &packet.Inputs[i], in); err != nil {
			return nil, fmt.Errorf("prepare input %d: %w", i, err)
		}
	}

	return packet, nil
}

// prepareInput fills PSBT input fields by script type: witness-UTXO data for
// segwit/taproot/nested inputs versus the full previous transaction for
// legacy ones. Taproot inputs carry the internal x-only key and, for
// script-path spends, the caller-supplied leaf script with control block.
func (b *Builder) prepareInput(ctx context.Context, input *psbt.PInput, utxo bitcoin.UTXO) error {
	scriptType, err := bitcoin.ClassifyAddress(utxo.Address)
	if err != nil {
		return err
	}

	pkScript, err := b.addressScript(utxo.Address)
	if err != nil {
		return err
	}

	input.SighashType = signHashType

	switch scriptType {
	case bitcoin.P2TR:
		input.WitnessUtxo = wire.NewTxOut(utxo.Value, pkScript)
		input.TaprootInternalKey, err = taprootInternalKey(utxo, pkScript)
		if err != nil {
			return err
		}

		if utxo.TapLeaf != nil {
			input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
				ControlBlock: utxo.TapLeaf.ControlBlock,
				Script:       utxo.TapLeaf.Script,
				LeafVersion:  txscript.BaseLeafVersion,
			}}
		}
	case bitcoin.P2WPKH, bitcoin.P2WSH:
		input.WitnessUtxo = wire.NewTxOut(utxo.Value, pkScript)
	case bitcoin.P2SH:
		input.WitnessUtxo = wire.NewTxOut(utxo.Value, pkScript)
		input.RedeemScript, err = nestedWitnessProgram(utxo.PubKey)
		if err != nil {
			return err
		}
	case bitcoin.P2PKH:
		prevTx, err := b.fetchPrevTx(ctx, utxo.TxID)
		if err != nil {
			return err
		}

		input.NonWitnessUtxo = prevTx
	default:
		return bitcoin.ErrUnknownScriptType
	}

	return nil
}

// fetchPrevTx loads and deserializes the funding transaction of a legacy input.
func (b *Builder) fetchPrevTx(ctx context.Context, txid string) (*wire.MsgTx, error) {
	rawHex, err := b.chain.GetTxHex(ctx, txid)
	if err != nil {
		return nil, err
	}
	if rawHex == "" {
		return nil, fmt.Errorf("previous transaction %s is not observed", txid)
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("previous transaction %s hex: %w", txid, err)
	}

	prevTx := wire.NewMsgTx(txVersion)
	if err = prevTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("previous transaction %s: %w", txid, err)
	}

	return prevTx, nil
}

// addressScript returns the locking script of the address.
func (b *Builder) addressScript(address string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, b.networkParams)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(decoded)
}

// taprootInternalKey resolves the x-only internal key of a taproot input:
// the provided public key when available, otherwise the output key taken
// straight from the witness program.
func taprootInternalKey(utxo bitcoin.UTXO, pkScript []byte) ([]byte, error) {
	if utxo.PubKey == "" {
		return pkScript[2:], nil
	}

	keyBytes, err := hex.DecodeString(utxo.PubKey)
	if err != nil {
		return nil, fmt.Errorf("taproot public key: %w", err)
	}
	if len(keyBytes) == 33 {
		keyBytes = keyBytes[1:]
	}

	return keyBytes, nil
}

// nestedWitnessProgram builds the version-0 witness program redeem script
// for a P2SH-P2WPKH input from the owner public key.
func nestedWitnessProgram(pubKey string) ([]byte, error) {
	if pubKey == "" {
		return nil, fmt.Errorf("nested segwit input requires the owner public key: %w", bitcoin.ErrUnknownScriptType)
	}

	keyBytes, err := hex.DecodeString(pubKey)
	if err != nil {
		return nil, fmt.Errorf("nested segwit public key: %w", err)
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(keyBytes)).
		Script()
}

// signingGroups groups input indexes by the owning address in first-seen order.
func signingGroups(inputs []bitcoin.UTXO) []SigningGroup {
	var (
		order  []string
		byAddr = make(map[string][]int, 2)
	)
	for idx, in := range inputs {
		if _, ok := byAddr[in.Address]; !ok {
			order = append(order, in.Address)
		}

		byAddr[in.Address] = append(byAddr[in.Address], idx)
	}

	groups := make([]SigningGroup, 0, len(order))
	for _, address := range order {
		groups = append(groups, SigningGroup{Address: address, SigningIndexes: byAddr[address]})
	}

	return groups
}

// serializeResult encodes the packet into hex and base64 forms.
func serializeResult(packet *psbt.Packet, fee int64, groups []SigningGroup) (*UnsignedPsbtResult, error) {
	w := bytes.NewBuffer(nil)
	if err := packet.Serialize(w); err != nil {
		return nil, err
	}

	return &UnsignedPsbtResult{
		Hex:            hex.EncodeToString(w.Bytes()),
		Base64:         base64.StdEncoding.EncodeToString(w.Bytes()),
		Fee:            fee,
		SigningIndexes: groups,
	}, nil
}
