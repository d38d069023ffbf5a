// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Signer provides transaction signing related logic over PSBT packets.
type Signer struct {
	networkParams *chaincfg.Params
}

// NewSigner is a constructor for Signer.
func NewSigner(networkParams *chaincfg.Params) *Signer {
	return &Signer{
		networkParams: networkParams,
	}
}

// SignTaproot signs taproot inputs by provided indexes. Inputs carrying a
// taproot leaf script are signed via the script path, the rest via the key
// path.
func (signer *Signer) SignTaproot(packet *psbt.Packet, inputs []int, privateKey *btcec.PrivateKey) error {
	fetcher := prevOutputFetcher(packet)
	for _, input := range inputs {
		if input < 0 || input >= len(packet.Inputs) {
			return errors.New("invalid input index")
		}

		if err := signer.signTaprootInput(packet, input, fetcher, privateKey); err != nil {
			return fmt.Errorf("sign taproot input %d: %w", input, err)
		}
	}

	return nil
}

// SignSegwitV0 signs P2WPKH inputs by provided indexes, storing partial
// signatures for finalization.
func (signer *Signer) SignSegwitV0(packet *psbt.Packet, inputs []int, privateKey *btcec.PrivateKey) error {
	fetcher := prevOutputFetcher(packet)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	for _, input := range inputs {
		if input < 0 || input >= len(packet.Inputs) {
			return errors.New("invalid input index")
		}

		in := &packet.Inputs[input]
		if in.WitnessUtxo == nil {
			return fmt.Errorf("input %d carries no witness utxo", input)
		}

		witness, err := txscript.WitnessSignature(
			packet.UnsignedTx, sigHashes, input,
			in.WitnessUtxo.Value, in.WitnessUtxo.PkScript,
			in.SighashType, privateKey, true,
		)
		if err != nil {
			return fmt.Errorf("sign segwit input %d: %w", input, err)
		}

		in.PartialSigs = []*psbt.PartialSig{{
			PubKey:    witness[1],
			Signature: witness[0],
		}}
	}

	return nil
}

// Finalize finalizes every input and extracts the raw network-ready
// transaction. Returns serialized transaction hex and its id.
func (signer *Signer) Finalize(packet *psbt.Packet) (rawTx, txid string, err error) {
	if err = psbt.MaybeFinalizeAll(packet); err != nil {
		return "", "", fmt.Errorf("finalize psbt: %w", err)
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return "", "", fmt.Errorf("extract transaction: %w", err)
	}

	w := bytes.NewBuffer(nil)
	if err = tx.Serialize(w); err != nil {
		return "", "", err
	}

	return hex.EncodeToString(w.Bytes()), tx.TxHash().String(), nil
}

// signTaprootInput signs one taproot input via script or key path.
func (signer *Signer) signTaprootInput(packet *psbt.Packet, input int, fetcher txscript.PrevOutputFetcher, privateKey *btcec.PrivateKey) error {
	var (
		in          = &packet.Inputs[input]
		sigHashes   = txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
		sigHashType = in.SighashType
	)
	if in.WitnessUtxo == nil {
		return errors.New("no witness utxo")
	}

	if len(in.TaprootLeafScript) != 0 {
		var (
			leaf     = in.TaprootLeafScript[0]
			tapLeaf  = txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script)
			leafHash = tapLeaf.TapHash()
		)

		sig, err := txscript.RawTxInTapscriptSignature(
			packet.UnsignedTx, sigHashes, input,
			in.WitnessUtxo.Value, in.WitnessUtxo.PkScript,
			tapLeaf, sigHashType, privateKey,
		)
		if err != nil {
			return err
		}

		if len(sig) > schnorr.SignatureSize {
			sig = sig[:schnorr.SignatureSize]
		}
		in.TaprootScriptSpendSig = []*psbt.TaprootScriptSpendSig{{
			XOnlyPubKey: schnorr.SerializePubKey(privateKey.PubKey()),
			LeafHash:    leafHash.CloneBytes(),
			Signature:   sig,
			SigHash:     sigHashType,
		}}

		return nil
	}

	witness, err := txscript.TaprootWitnessSignature(
		packet.UnsignedTx, sigHashes, input,
		in.WitnessUtxo.Value, in.WitnessUtxo.PkScript,
		sigHashType, privateKey)
	if err != nil {
		return err
	}

	in.TaprootKeySpendSig = witness[0]

	return nil
}

// prevOutputFetcher collects witness utxos of all inputs for sighash computation.
func prevOutputFetcher(packet *psbt.Packet) txscript.PrevOutputFetcher {
	tx := packet.UnsignedTx
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for idx, in := range packet.Inputs {
		prevOuts[tx.TxIn[idx].PreviousOutPoint] = in.WitnessUtxo
	}

	return txscript.NewMultiPrevOutFetcher(prevOuts)
}
