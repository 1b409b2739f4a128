// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/crypto/eip712"
)

// NetworkKey is the relayer's public encryption material.
type NetworkKey struct {
	// ChainID of the host chain the handles are bound to.
	ChainID   uint64        `json:"chainId"`
	PublicKey hexutil.Bytes `json:"publicKey"`
	// Signer signs input proofs.
	Signer common.Address `json:"signer"`
	// Domain the user-decrypt signatures must be made under.
	Domain eip712.Domain `json:"domain"`
}

type InputProofRequest struct {
	ContractAddress common.Address  `json:"contractAddress"`
	UserAddress     common.Address  `json:"userAddress"`
	Ciphertexts     []hexutil.Bytes `json:"ciphertexts"`
}

type InputProofResponse struct {
	Handles    []depository.Handle `json:"handles"`
	InputProof hexutil.Bytes       `json:"inputProof"`
}

type HandleContractPair struct {
	Handle          depository.Handle `json:"handle"`
	ContractAddress common.Address    `json:"contractAddress"`
}

type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	ContractAddresses   []common.Address     `json:"contractAddresses"`
	UserAddress         common.Address       `json:"userAddress"`
	PublicKey           hexutil.Bytes        `json:"publicKey"`
	Signature           hexutil.Bytes        `json:"signature"`
	StartTimestamp      int64                `json:"startTimestamp"`
	DurationDays        uint64               `json:"durationDays"`
	ExtraData           hexutil.Bytes        `json:"extraData"`
}

// Authorization returns the typed-data payload the signature must cover.
func (r *UserDecryptRequest) Authorization() *eip712.UserDecryptRequest {
	return &eip712.UserDecryptRequest{
		PublicKey:         r.PublicKey,
		ContractAddresses: r.ContractAddresses,
		StartTimestamp:    r.StartTimestamp,
		DurationDays:      r.DurationDays,
		ExtraData:         r.ExtraData,
	}
}

// Share is one plaintext re-encrypted to the requester's ephemeral key.
type Share struct {
	Handle  depository.Handle `json:"handle"`
	Payload hexutil.Bytes     `json:"payload"`
}

type UserDecryptResponse struct {
	Shares []Share `json:"shares"`
}

// DecryptRequest is a signed user decryption as seen by the caller.
type DecryptRequest struct {
	Handles       []depository.Handle
	Contract      common.Address
	User          common.Address
	Keypair       *Keypair
	Authorization *eip712.UserDecryptRequest
	Signature     []byte
}
