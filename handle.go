// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// HandleLen is the size of a ciphertext handle in bytes.
const HandleLen = 32

// Handle is an opaque reference to a ciphertext held by the FHE coprocessor.
type Handle [HandleLen]byte

// String returns the canonical form: lower-case hex with a 0x prefix.
func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Handle) Bytes() []byte {
	return h[:]
}

func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Short returns an abbreviated form for display.
func (h Handle) Short() string {
	s := h.String()
	return s[:12] + "..."
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle parses a hex handle. Letter case and the 0x prefix are not
// significant; relayers are not consistent about either.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*HandleLen {
		return Handle{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidHandle, 2*HandleLen, len(s))
	}
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// NormalizeHandle coerces the shapes a handle is returned in by contract
// bindings and relayers into a Handle: hex strings of any case, byte slices,
// byte arrays, hashes and integers.
func NormalizeHandle(v interface{}) (Handle, error) {
	switch val := v.(type) {
	case Handle:
		return val, nil
	case *Handle:
		if val == nil {
			return Handle{}, fmt.Errorf("%w: nil", ErrInvalidHandle)
		}
		return *val, nil
	case [HandleLen]byte:
		return Handle(val), nil
	case common.Hash:
		return Handle(val), nil
	case string:
		return ParseHandle(val)
	case []byte:
		if len(val) != HandleLen {
			return Handle{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHandle, HandleLen, len(val))
		}
		var h Handle
		copy(h[:], val)
		return h, nil
	case *big.Int:
		if val == nil || val.Sign() < 0 || val.BitLen() > 8*HandleLen {
			return Handle{}, fmt.Errorf("%w: integer out of range", ErrInvalidHandle)
		}
		var h Handle
		val.FillBytes(h[:])
		return h, nil
	case *uint256.Int:
		if val == nil {
			return Handle{}, fmt.Errorf("%w: nil", ErrInvalidHandle)
		}
		return Handle(val.Bytes32()), nil
	case fmt.Stringer:
		return ParseHandle(val.String())
	default:
		return Handle{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidHandle, v)
	}
}
