// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Record is a registered database as reported by the ledger.
type Record struct {
	// ID is assigned sequentially by the ledger, starting at 1.
	ID                  uint64
	Name                string
	Owner               common.Address
	CreatedAt           time.Time
	EncryptedIdentifier Handle
	Commitment          common.Hash
	ValueCount          uint64
}

// IsOwnedBy reports whether account owns the record.
func (r *Record) IsOwnedBy(account common.Address) bool {
	return r.Owner == account
}

// ParseName trims a user supplied database name and rejects empty names.
func ParseName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", &Error{Kind: KindValidation, Err: ErrEmptyName}
	}
	return name, nil
}

// ParseValue parses a user supplied number to store.
func ParseValue(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &Error{Kind: KindValidation, Err: ErrEmptyValue}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v > math.MaxUint32 {
		return 0, &Error{Kind: KindValidation, Err: ErrValueOutOfRange}
	}
	return uint32(v), nil
}

// ParseAccount parses a hex address. The zero address is rejected.
func ParseAccount(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, &Error{Kind: KindValidation, Err: ErrInvalidAccount}
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, &Error{Kind: KindValidation, Err: ErrZeroAddress}
	}
	return addr, nil
}

// ParseDatabaseID parses a decimal database id. Ids start at 1.
func ParseDatabaseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, &Error{Kind: KindValidation, Err: ErrInvalidID}
	}
	return id, nil
}

// IDFromBig converts an on-chain uint256 id. Ids beyond uint64 are rejected.
func IDFromBig(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, ErrInvalidID
	}
	return v.Uint64(), nil
}
