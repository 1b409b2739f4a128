// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/luxfi/depository/utils"
)

// Signer signs registry transactions.
type Signer interface {
	SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error)
	Address() common.Address
}

// TypedDataSigner produces EIP-712 signatures. Signatures use a 27/28
// recovery id, as wallets return them.
type TypedDataSigner interface {
	SignTypedData(data apitypes.TypedData) ([]byte, error)
	Address() common.Address
}

var (
	_ Signer          = (*TxSigner)(nil)
	_ TypedDataSigner = (*TxSigner)(nil)
)

// TxSigner signs with a local private key.
type TxSigner struct {
	pk      *ecdsa.PrivateKey
	address common.Address
}

func NewTxSigner(pk string) (*TxSigner, error) {
	key, err := crypto.HexToECDSA(utils.SanitizeHexString(pk))
	if err != nil {
		return nil, fmt.Errorf("invalid account private key: %w", err)
	}
	return NewTxSignerFromKey(key), nil
}

func NewTxSignerFromKey(key *ecdsa.PrivateKey) *TxSigner {
	return &TxSigner{
		pk:      key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *TxSigner) SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(evmChainID), s.pk)
}

func (s *TxSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.pk)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *TxSigner) Address() common.Address {
	return s.address
}
