// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"math"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/depository"
)

func TestEncodePlaintext(t *testing.T) {
	tests := []struct {
		name        string
		typ         Type
		value       *uint256.Int
		expectedErr error
	}{
		{
			name:  "uint32 max",
			typ:   TypeUint32,
			value: uint256.NewInt(math.MaxUint32),
		},
		{
			name:        "uint32 overflow",
			typ:         TypeUint32,
			value:       uint256.NewInt(math.MaxUint32 + 1),
			expectedErr: ErrInvalidCiphertext,
		},
		{
			name:  "address",
			typ:   TypeAddress,
			value: AddressValue(common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")),
		},
		{
			name:        "unknown type",
			typ:         Type(1),
			value:       uint256.NewInt(1),
			expectedErr: ErrTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			b, err := EncodePlaintext(tt.typ, tt.value)
			require.ErrorIs(err, tt.expectedErr)
			if tt.expectedErr != nil {
				return
			}
			require.Len(b, PlaintextLen)

			typ, value, err := DecodePlaintext(b)
			require.NoError(err)
			require.Equal(tt.typ, typ)
			require.True(tt.value.Eq(value))
		})
	}
}

func TestDecodePlaintextRejectsShortInput(t *testing.T) {
	_, _, err := DecodePlaintext([]byte{byte(TypeUint32), 1})
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewHandleLayout(t *testing.T) {
	require := require.New(t)

	digest := common.HexToHash("0xabababababababababababababababababababababababababababababababab")
	h := NewHandle(digest, 3, 31337, TypeUint32)

	require.Equal(digest[:21], h[:21])
	require.Equal(byte(3), h[21])
	require.Equal(uint64(31337), HandleChainID(h))
	require.Equal(TypeUint32, HandleType(h))
	require.Equal(byte(HandleVersion), h[31])
}

func TestPlaintextsLookupIgnoresCase(t *testing.T) {
	require := require.New(t)

	h := NewHandle(common.HexToHash("0xAB"), 0, 1, TypeUint32)
	p := Plaintexts{h: uint256.NewInt(1234)}

	v, ok := p.Lookup(strings.ToUpper(h.String()[2:]))
	require.True(ok)
	require.Equal(uint64(1234), v.Uint64())

	got, err := p.Uint32(h)
	require.NoError(err)
	require.Equal(uint32(1234), got)

	_, err = p.Uint32(depository.Handle{1})
	require.ErrorIs(err, depository.ErrMissingPlaintext)
}

func TestPlaintextsAddress(t *testing.T) {
	require := require.New(t)

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	h := NewHandle(common.HexToHash("0x01"), 0, 1, TypeAddress)
	p := Plaintexts{h: AddressValue(addr)}

	got, err := p.Address(h)
	require.NoError(err)
	require.Equal(addr, got)
}
