// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the fault domain it came from.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation is bad user input, rejected before any network call.
	KindValidation
	// KindPrecondition is a rejection by the ledger (missing record, not owner, ...).
	KindPrecondition
	// KindService is an unreachable or failing RPC/relayer endpoint. Retryable by the user.
	KindService
	// KindIntegrity is a commitment mismatch after decryption.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindService:
		return "service"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Validation errors
var (
	ErrEmptyName       = errors.New("database name is empty")
	ErrEmptyValue      = errors.New("value is empty")
	ErrValueOutOfRange = errors.New("value does not fit in 32 bits")
	ErrInvalidAccount  = errors.New("invalid account address")
	ErrInvalidHandle   = errors.New("invalid ciphertext handle")
	ErrInvalidID       = errors.New("invalid database id")
	ErrZeroIdentifier  = errors.New("identifier is the zero address")
	ErrZeroAddress     = errors.New("account is the zero address")
	ErrEmptyInputProof = errors.New("input proof is empty")
)

// Ledger rejections, one per custom error of the registry contract.
var (
	ErrCommitmentRequired       = errors.New("commitment required")
	ErrInvalidCommitment        = errors.New("invalid commitment")
	ErrDatabaseNotFound         = errors.New("database not found")
	ErrNotDatabaseOwner         = errors.New("caller is not the database owner")
	ErrAddressAlreadyAuthorized = errors.New("address already authorized")
	ErrProtocolUnsupported      = errors.New("fhe protocol unsupported on this chain")
	ErrInvalidInputProof        = errors.New("invalid input proof")
	ErrTxReverted               = errors.New("transaction reverted")
)

// Session errors
var (
	ErrBusy               = errors.New("action already in progress")
	ErrLocked             = errors.New("database key is locked")
	ErrNoValues           = errors.New("no encrypted values stored")
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	ErrMissingPlaintext   = errors.New("relayer returned no plaintext for handle")
)

// Error is a failure of a single client operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the name of the failing operation. A nil
// err stays nil. An err that already carries a kind keeps it.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if bare, ok := err.(*Error); ok {
		if bare.Op == "" {
			return &Error{Kind: bare.Kind, Op: op, Err: bare.Err}
		}
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" {
			return err
		}
		// Keep the wrapping context in the message.
		return &Error{Kind: existing.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsIntegrity reports whether err is a commitment verification failure.
func IsIntegrity(err error) bool {
	return KindOf(err) == KindIntegrity
}
