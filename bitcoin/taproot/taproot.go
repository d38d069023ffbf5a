// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package taproot holds tapscript tree helpers for whitelist-gated
// script-path spends.
package taproot

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/alkamint/bitcoin"
)

// NewTapScriptTree builds tapScript tree from provided raw leaf scripts.
func NewTapScriptTree(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errors.New("no leaf scripts provided")
	}

	var tapLeafs = make([]txscript.TapLeaf, len(leafScripts))
	for i, leafScript := range leafScripts {
		tapLeafs[i] = txscript.NewBaseTapLeaf(leafScript)
	}

	return txscript.AssembleTaprootScriptTree(tapLeafs...), nil
}

// NewAddressFromLeafScripts generates a taproot address committing to the
// tree built from provided leaf scripts.
func NewAddressFromLeafScripts(chainParams *chaincfg.Params, internalKey *btcec.PublicKey, leafScripts ...[]byte) (*btcutil.AddressTaproot, error) {
	tree, err := NewTapScriptTree(leafScripts...)
	if err != nil {
		return nil, err
	}

	rootHash := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), chainParams)
}

// LeafSpendData returns the leaf script and control block proving the leaf
// at the given index, ready to attach to a UTXO for a script-path spend.
func LeafSpendData(tree *txscript.IndexedTapScriptTree, leafIndex int, internalKey *btcec.PublicKey) (*bitcoin.TapLeaf, error) {
	if leafIndex < 0 || leafIndex >= len(tree.LeafMerkleProofs) {
		return nil, errors.New("leaf index is out of range")
	}

	proof := tree.LeafMerkleProofs[leafIndex]
	ctrlBlock := proof.ToControlBlock(internalKey)
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return nil, err
	}

	return &bitcoin.TapLeaf{
		Script:       proof.Script,
		ControlBlock: ctrlBlockBytes,
	}, nil
}

// NewUnspendableScript builds a provably unspendable OP_RETURN script with
// optional data added after.
func NewUnspendableScript(msg ...byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN)
	if len(msg) > 0 {
		scriptBuilder.AddData(msg)
	}

	return scriptBuilder.Script()
}
