// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package alkanes

import (
	"math/big"
)

// Contract opcodes understood by this service. Calldata layout is
// [block, tx, opcode, extras...].
const (
	// OpcodeMint defines a public mint call.
	OpcodeMint uint64 = 78
	// OpcodeAuthMint defines a whitelist/auth-gated mint call carrying an
	// extra discriminator integer.
	OpcodeAuthMint uint64 = 69
	// OpcodeMergeTransfer defines the merge-model transfer call that
	// forwards accumulated balance along the chain.
	OpcodeMergeTransfer uint64 = 77
)

// MintCalldata builds the public mint calldata for the alkane.
func MintCalldata(id AlkaneID) []*big.Int {
	return append(id.ToIntSeq(), new(big.Int).SetUint64(OpcodeMint))
}

// AuthMintCalldata builds the whitelist-gated mint calldata carrying the
// auth discriminator.
func AuthMintCalldata(id AlkaneID, auth *big.Int) []*big.Int {
	return append(id.ToIntSeq(), new(big.Int).SetUint64(OpcodeAuthMint), new(big.Int).Set(auth))
}

// MergeTransferCalldata builds the merge-transfer calldata forwarding the
// accumulated balance.
func MergeTransferCalldata(id AlkaneID) []*big.Int {
	return append(id.ToIntSeq(), new(big.Int).SetUint64(OpcodeMergeTransfer))
}
