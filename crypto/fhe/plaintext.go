// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/luxfi/depository"
)

const (
	// PlaintextLen is a type byte followed by a 32-byte big-endian value.
	PlaintextLen = 1 + 32

	// HandleVersion is stored in the last byte of every handle.
	HandleVersion = 0

	handlePrefixLen = 21
	handleIndexPos  = 21
	handleChainPos  = 22
	handleTypePos   = 30
	handleVerPos    = 31
)

// EncodePlaintext serializes a typed value for encryption.
func EncodePlaintext(t Type, v *uint256.Int) ([]byte, error) {
	width := t.bitWidth()
	if width == 0 {
		return nil, fmt.Errorf("%w: %d", ErrTypeMismatch, t)
	}
	if v.BitLen() > width {
		return nil, fmt.Errorf("%w: value needs %d bits, %s holds %d", ErrInvalidCiphertext, v.BitLen(), t, width)
	}
	out := make([]byte, PlaintextLen)
	out[0] = byte(t)
	value := v.Bytes32()
	copy(out[1:], value[:])
	return out, nil
}

// DecodePlaintext is the inverse of EncodePlaintext.
func DecodePlaintext(b []byte) (Type, *uint256.Int, error) {
	if len(b) != PlaintextLen {
		return 0, nil, fmt.Errorf("%w: plaintext length %d", ErrInvalidCiphertext, len(b))
	}
	t := Type(b[0])
	width := t.bitWidth()
	if width == 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrTypeMismatch, b[0])
	}
	v := new(uint256.Int).SetBytes32(b[1:])
	if v.BitLen() > width {
		return 0, nil, fmt.Errorf("%w: value exceeds %s", ErrInvalidCiphertext, t)
	}
	return t, v, nil
}

// AddressValue is the integer form of an address plaintext.
func AddressValue(a common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes20(a.Bytes())
}

// NewHandle lays out a handle: hash prefix, index, chain id, type, version.
func NewHandle(digest common.Hash, index uint8, chainID uint64, t Type) depository.Handle {
	var h depository.Handle
	copy(h[:handlePrefixLen], digest[:handlePrefixLen])
	h[handleIndexPos] = index
	binary.BigEndian.PutUint64(h[handleChainPos:handleTypePos], chainID)
	h[handleTypePos] = byte(t)
	h[handleVerPos] = HandleVersion
	return h
}

// HandleType returns the encrypted type a handle refers to.
func HandleType(h depository.Handle) Type {
	return Type(h[handleTypePos])
}

// HandleChainID returns the chain a handle is bound to.
func HandleChainID(h depository.Handle) uint64 {
	return binary.BigEndian.Uint64(h[handleChainPos:handleTypePos])
}

// Plaintexts maps handles to decrypted values.
type Plaintexts map[depository.Handle]*uint256.Int

// Lookup finds a plaintext by its handle string regardless of letter case.
func (p Plaintexts) Lookup(handle string) (*uint256.Int, bool) {
	h, err := depository.ParseHandle(handle)
	if err != nil {
		return nil, false
	}
	v, ok := p[h]
	return v, ok
}

// Address returns the plaintext of h as an address.
func (p Plaintexts) Address(h depository.Handle) (common.Address, error) {
	v, ok := p[h]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", depository.ErrMissingPlaintext, h)
	}
	if v.BitLen() > 160 {
		return common.Address{}, fmt.Errorf("%w: plaintext of %s is not an address", ErrTypeMismatch, h)
	}
	return common.Address(v.Bytes20()), nil
}

// Uint32 returns the plaintext of h as a uint32.
func (p Plaintexts) Uint32(h depository.Handle) (uint32, error) {
	v, ok := p[h]
	if !ok {
		return 0, fmt.Errorf("%w: %s", depository.ErrMissingPlaintext, h)
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint32 {
		return 0, fmt.Errorf("%w: plaintext of %s exceeds 32 bits", ErrTypeMismatch, h)
	}
	return uint32(v.Uint64()), nil
}
