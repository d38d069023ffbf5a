// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package mint

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// keyDomainPrefix domain-separates ephemeral order keys from any other use
// of order ids. Changing it invalidates recovery of in-flight orders.
const keyDomainPrefix = "alkamint/merge-order/v1:"

// DeriveOrderKey deterministically derives the ephemeral private key
// controlling the order's intermediate mint address. The key is never
// persisted: recovery re-derives it from the order id alone.
func DeriveOrderKey(orderID string) *btcec.PrivateKey {
	digest := sha256.Sum256([]byte(keyDomainPrefix + orderID))
	privateKey, _ := btcec.PrivKeyFromBytes(digest[:])

	return privateKey
}

// DeriveMintAddress returns the P2WPKH address controlled by the order's
// ephemeral key.
func DeriveMintAddress(orderID string, networkParams *chaincfg.Params) (string, error) {
	publicKey := DeriveOrderKey(orderID).PubKey()
	address, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(publicKey.SerializeCompressed()), networkParams)
	if err != nil {
		return "", err
	}

	return address.EncodeAddress(), nil
}
