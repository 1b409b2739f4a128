// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package eip712 builds the typed-data authorization a user signs to let the
// relayer re-encrypt ciphertexts to an ephemeral key.
package eip712

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "Decryption"
	DomainVersion = "1"
	PrimaryType   = "UserDecryptRequestVerification"

	// MaxDurationDays bounds the validity window of a single authorization.
	MaxDurationDays = 365
	// DefaultDurationDays matches what wallets are asked to sign by default.
	DefaultDurationDays = 10

	secondsPerDay = 24 * 60 * 60
)

var (
	ErrNoContracts       = errors.New("authorization names no contracts")
	ErrInvalidDuration   = fmt.Errorf("duration must be between 1 and %d days", MaxDurationDays)
	ErrNotYetValid       = errors.New("authorization not yet valid")
	ErrExpired           = errors.New("authorization expired")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignerMismatch    = errors.New("signature does not match user")
	ErrContractNotListed = errors.New("contract not listed in authorization")
)

// Domain identifies the decryption verifier the signature is bound to.
type Domain struct {
	ChainID           uint64         `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// UserDecryptRequest is the signed payload of a user decryption.
type UserDecryptRequest struct {
	PublicKey         []byte
	ContractAddresses []common.Address
	StartTimestamp    int64
	DurationDays      uint64
	ExtraData         []byte
}

// NewUserDecryptRequest returns a request valid from start for durationDays.
func NewUserDecryptRequest(
	publicKey []byte,
	contracts []common.Address,
	start time.Time,
	durationDays uint64,
) (*UserDecryptRequest, error) {
	req := &UserDecryptRequest{
		PublicKey:         publicKey,
		ContractAddresses: contracts,
		StartTimestamp:    start.Unix(),
		DurationDays:      durationDays,
		ExtraData:         []byte{},
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *UserDecryptRequest) Validate() error {
	if len(r.ContractAddresses) == 0 {
		return ErrNoContracts
	}
	if r.DurationDays == 0 || r.DurationDays > MaxDurationDays {
		return ErrInvalidDuration
	}
	if len(r.PublicKey) == 0 {
		return errors.New("public key is empty")
	}
	return nil
}

// Expiry returns the first instant the request is no longer valid.
func (r *UserDecryptRequest) Expiry() time.Time {
	return time.Unix(r.StartTimestamp+int64(r.DurationDays)*secondsPerDay, 0)
}

// CheckWindow verifies now lies in [start, start+duration).
func (r *UserDecryptRequest) CheckWindow(now time.Time) error {
	if now.Unix() < r.StartTimestamp {
		return ErrNotYetValid
	}
	if !now.Before(r.Expiry()) {
		return ErrExpired
	}
	return nil
}

// Lists reports whether contract is one of the authorized contracts.
func (r *UserDecryptRequest) Lists(contract common.Address) bool {
	for _, c := range r.ContractAddresses {
		if c == contract {
			return true
		}
	}
	return false
}

// TypedData renders the request under the given domain.
func (r *UserDecryptRequest) TypedData(domain Domain) apitypes.TypedData {
	contracts := make([]interface{}, len(r.ContractAddresses))
	for i, c := range r.ContractAddresses {
		contracts[i] = c.Hex()
	}
	extra := r.ExtraData
	if extra == nil {
		extra = []byte{}
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         r.PublicKey,
			"contractAddresses": contracts,
			"startTimestamp":    strconv.FormatInt(r.StartTimestamp, 10),
			"durationDays":      strconv.FormatUint(r.DurationDays, 10),
			"extraData":         extra,
		},
	}
}

// Hash returns the EIP-712 digest of the request.
func (r *UserDecryptRequest) Hash(domain Domain) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(r.TypedData(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// Recover returns the address that produced signature over the request.
// Signatures with a 27/28 recovery id, as produced by wallets, are accepted.
func (r *UserDecryptRequest) Recover(domain Domain, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}
	hash, err := r.Hash(domain)
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that user signed the request.
func (r *UserDecryptRequest) Verify(domain Domain, signature []byte, user common.Address) error {
	signer, err := r.Recover(domain, signature)
	if err != nil {
		return err
	}
	if signer != user {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrSignerMismatch, signer.Hex(), user.Hex())
	}
	return nil
}
