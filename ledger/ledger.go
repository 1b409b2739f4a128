// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger describes the registry contract as the depository consumes
// it: writes that return a pending transaction, reads, events and the
// contract's custom errors.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/depository"
)

// Registry is a client bound to one registry contract and one sender.
type Registry interface {
	// Address of the registry contract. Encrypted inputs are bound to it.
	Address() common.Address
	// From is the account writes are sent from.
	From() common.Address

	CreateDatabase(
		ctx context.Context,
		name string,
		commitment common.Hash,
		identifier depository.Handle,
		proof []byte,
	) (Pending, error)
	StoreEncryptedValue(
		ctx context.Context,
		id uint64,
		commitment common.Hash,
		value depository.Handle,
		proof []byte,
	) (Pending, error)
	GrantDecryptPermission(ctx context.Context, id uint64, account common.Address) (Pending, error)

	GetOwnedDatabases(ctx context.Context, owner common.Address) ([]uint64, error)
	GetDatabase(ctx context.Context, id uint64) (*depository.Record, error)
	GetDatabaseDecryptors(ctx context.Context, id uint64) ([]common.Address, error)
	GetDatabaseValues(ctx context.Context, id uint64) ([]depository.Handle, error)
	TotalDatabases(ctx context.Context) (uint64, error)
}

// EventSource reads the registry's event history.
type EventSource interface {
	FetchEvents(ctx context.Context, fromBlock uint64) ([]Event, error)
}

// Pending is a submitted write.
type Pending interface {
	Hash() common.Hash
	// Wait blocks until the transaction is included or ctx is done.
	Wait(ctx context.Context) (*Receipt, error)
}

// Receipt is an included, successful write.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Events      []Event
}

// Created returns the DatabaseCreated event of the receipt.
func (r *Receipt) Created() (*DatabaseCreated, error) {
	for _, e := range r.Events {
		if created, ok := e.(*DatabaseCreated); ok {
			return created, nil
		}
	}
	return nil, fmt.Errorf("receipt %s has no %s event", r.TxHash.Hex(), EventDatabaseCreated)
}

const (
	EventDatabaseCreated      = "DatabaseCreated"
	EventDecryptorGranted     = "DecryptorGranted"
	EventEncryptedValueStored = "EncryptedValueStored"
)

// EventMeta locates an event in the chain.
type EventMeta struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

func (m EventMeta) Meta() EventMeta {
	return m
}

// Event is one of the registry's events.
type Event interface {
	Name() string
	Meta() EventMeta
	DatabaseID() uint64
}

type DatabaseCreated struct {
	EventMeta
	ID         uint64
	Owner      common.Address
	DBName     string
	Commitment common.Hash
}

func (*DatabaseCreated) Name() string        { return EventDatabaseCreated }
func (e *DatabaseCreated) DatabaseID() uint64 { return e.ID }

type DecryptorGranted struct {
	EventMeta
	ID      uint64
	Account common.Address
}

func (*DecryptorGranted) Name() string        { return EventDecryptorGranted }
func (e *DecryptorGranted) DatabaseID() uint64 { return e.ID }

type EncryptedValueStored struct {
	EventMeta
	ID         uint64
	Owner      common.Address
	ValueIndex uint64
}

func (*EncryptedValueStored) Name() string        { return EventEncryptedValueStored }
func (e *EncryptedValueStored) DatabaseID() uint64 { return e.ID }

// SortEvents orders events by block and log index.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
}

// Custom error names of the registry contract.
const (
	ErrorEmptyName                = "EmptyName"
	ErrorCommitmentRequired       = "CommitmentRequired"
	ErrorInvalidCommitment        = "InvalidCommitment"
	ErrorDatabaseNotFound         = "DatabaseNotFound"
	ErrorNotDatabaseOwner         = "NotDatabaseOwner"
	ErrorZeroAddress              = "ZeroAddress"
	ErrorAddressAlreadyAuthorized = "AddressAlreadyAuthorized"
	ErrorProtocolUnsupported      = "ZamaProtocolUnsupported"
)

var errorsByName = map[string]error{
	ErrorEmptyName:                depository.ErrEmptyName,
	ErrorCommitmentRequired:       depository.ErrCommitmentRequired,
	ErrorInvalidCommitment:        depository.ErrInvalidCommitment,
	ErrorDatabaseNotFound:         depository.ErrDatabaseNotFound,
	ErrorNotDatabaseOwner:         depository.ErrNotDatabaseOwner,
	ErrorZeroAddress:              depository.ErrZeroAddress,
	ErrorAddressAlreadyAuthorized: depository.ErrAddressAlreadyAuthorized,
	ErrorProtocolUnsupported:      depository.ErrProtocolUnsupported,
}

// ErrorByName returns the sentinel for a contract custom error, or nil if the
// name is not one of the registry's errors.
func ErrorByName(name string) error {
	return errorsByName[name]
}

// RevertError is a write or read rejected by the contract.
type RevertError struct {
	// Name of the custom error, empty for a plain revert.
	Name string
	Args []interface{}
	Err  error
}

// NewRevertError builds the revert for a known custom error.
func NewRevertError(name string, args ...interface{}) *RevertError {
	err := ErrorByName(name)
	if err == nil {
		err = depository.ErrTxReverted
	}
	return &RevertError{Name: name, Args: args, Err: err}
}

func (e *RevertError) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	if len(e.Args) == 0 {
		return fmt.Sprintf("reverted with %s(): %v", e.Name, e.Err)
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("reverted with %s(%s): %v", e.Name, strings.Join(args, ", "), e.Err)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// IsRevert reports whether err is a rejection by the contract rather than a
// transport failure.
func IsRevert(err error) bool {
	var revert *RevertError
	return errors.As(err, &revert) || errors.Is(err, depository.ErrTxReverted)
}

func validation(err error) error {
	return &depository.Error{Kind: depository.KindValidation, Err: err}
}

// ValidateCreate mirrors the stateless preconditions of createDatabase.
func ValidateCreate(name string, commitment common.Hash, identifier depository.Handle, proof []byte) error {
	switch {
	case strings.TrimSpace(name) == "":
		return validation(depository.ErrEmptyName)
	case commitment == (common.Hash{}):
		return validation(depository.ErrCommitmentRequired)
	case identifier.IsZero():
		return validation(depository.ErrInvalidHandle)
	case len(proof) == 0:
		return validation(depository.ErrEmptyInputProof)
	}
	return nil
}

// ValidateStore mirrors the stateless preconditions of storeEncryptedValue.
func ValidateStore(id uint64, commitment common.Hash, value depository.Handle, proof []byte) error {
	switch {
	case id == 0:
		return validation(depository.ErrInvalidID)
	case commitment == (common.Hash{}):
		return validation(depository.ErrInvalidCommitment)
	case value.IsZero():
		return validation(depository.ErrInvalidHandle)
	case len(proof) == 0:
		return validation(depository.ErrEmptyInputProof)
	}
	return nil
}

// ValidateGrant mirrors the stateless preconditions of grantDecryptPermission.
func ValidateGrant(id uint64, account common.Address) error {
	switch {
	case id == 0:
		return validation(depository.ErrInvalidID)
	case account == (common.Address{}):
		return validation(depository.ErrZeroAddress)
	}
	return nil
}
