// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe defines the homomorphic-encryption capabilities the depository
// consumes. The cryptography lives behind a relayer; callers only see handles,
// input proofs and re-encrypted plaintexts.
package fhe

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/depository"
)

// Type is the encrypted type tag carried in byte 30 of a handle.
type Type uint8

const (
	TypeBool    Type = 0
	TypeUint8   Type = 2
	TypeUint16  Type = 3
	TypeUint32  Type = 4
	TypeUint64  Type = 5
	TypeUint128 Type = 6
	TypeAddress Type = 7
	TypeUint256 Type = 8
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint16:
		return "euint16"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	case TypeUint128:
		return "euint128"
	case TypeAddress:
		return "eaddress"
	case TypeUint256:
		return "euint256"
	default:
		return "unknown"
	}
}

// bitWidth is the plaintext width of t, or 0 for unknown types.
func (t Type) bitWidth() int {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint16:
		return 16
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	case TypeUint128:
		return 128
	case TypeAddress:
		return 160
	case TypeUint256:
		return 256
	default:
		return 0
	}
}

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidProof      = errors.New("invalid input proof")
	ErrNotAllowed        = errors.New("handle not allowed for account")
	ErrUnauthorized      = errors.New("user decryption not authorized")
	ErrUnknownHandle     = errors.New("unknown handle")
	ErrTypeMismatch      = errors.New("unexpected encrypted type")
	ErrRelayer           = errors.New("relayer request failed")
)

// EncryptedInput is what a contract call needs to accept encrypted values.
type EncryptedInput struct {
	Handles    []depository.Handle
	InputProof []byte
}

// Keypair is an ephemeral key the relayer re-encrypts plaintexts to.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Encryptor turns plaintexts into handles bound to (contract, submitter).
type Encryptor interface {
	EncryptAddress(ctx context.Context, contract, submitter, value common.Address) (*EncryptedInput, error)
	EncryptUint32(ctx context.Context, contract, submitter common.Address, value uint32) (*EncryptedInput, error)
}

// Decryptor performs authorized user decryption of handles.
type Decryptor interface {
	GenerateKeypair() (*Keypair, error)
	UserDecrypt(ctx context.Context, req *DecryptRequest) (Plaintexts, error)
}

// Relayer is the remote service boundary. Implementations: coprocessor (in
// process) and relayer.Client (HTTP).
type Relayer interface {
	NetworkKey(ctx context.Context) (*NetworkKey, error)
	InputProof(ctx context.Context, req *InputProofRequest) (*InputProofResponse, error)
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (*UserDecryptResponse, error)
}

// ACL records which accounts may use a handle. The registry contract grants;
// the relayer checks.
type ACL interface {
	Allow(handle depository.Handle, account common.Address) error
	IsAllowed(handle depository.Handle, account common.Address) bool
}

// InputVerifier checks that a handle was produced for (contract, user).
type InputVerifier interface {
	VerifyInput(handle depository.Handle, proof []byte, contract, user common.Address) error
}
