// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// commitmentArguments is abi.encode(address). The registry recomputes the
// commitment with the same encoding, so it must not change.
var commitmentArguments = abi.Arguments{{Type: mustNewType("address")}}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// GenerateIdentity returns the address of a fresh random secp256k1 key. The
// address is a database's symmetric secret; the private key is discarded.
func GenerateIdentity() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to generate identity key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// CommitmentOf returns keccak256(abi.encode(identifier)).
func CommitmentOf(identifier common.Address) common.Hash {
	encoded, err := commitmentArguments.Pack(identifier)
	if err != nil {
		// Packing a single common.Address cannot fail.
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// VerifyCommitment checks a decrypted identifier against the commitment
// stored next to it.
func VerifyCommitment(identifier common.Address, commitment common.Hash) error {
	if derived := CommitmentOf(identifier); derived != commitment {
		return &Error{
			Kind: KindIntegrity,
			Err:  fmt.Errorf("%w: derived %s, stored %s", ErrCommitmentMismatch, derived.Hex(), commitment.Hex()),
		}
	}
	return nil
}
