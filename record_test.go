// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	require := require.New(t)
	name, err := ParseName("  My DB\t")
	require.NoError(err)
	require.Equal("My DB", name)

	_, err = ParseName(" \n ")
	require.ErrorIs(err, ErrEmptyName)
	require.Equal(KindValidation, KindOf(err))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input       string
		expected    uint32
		expectedErr error
	}{
		{input: "1234", expected: 1234},
		{input: " 0 ", expected: 0},
		{input: "4294967295", expected: 4294967295},
		{input: "4294967296", expectedErr: ErrValueOutOfRange},
		{input: "-1", expectedErr: ErrValueOutOfRange},
		{input: "12a", expectedErr: ErrValueOutOfRange},
		{input: "", expectedErr: ErrEmptyValue},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseValue(tt.input)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				require.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, v)
		})
	}
}

func TestParseAccount(t *testing.T) {
	require := require.New(t)
	a, err := ParseAccount(" 0x70997970c51812dc3a010c7d01b50e0d17dc79c8 ")
	require.NoError(err)
	require.Equal(common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), a)

	_, err = ParseAccount("0x1234")
	require.ErrorIs(err, ErrInvalidAccount)
	_, err = ParseAccount("0x0000000000000000000000000000000000000000")
	require.ErrorIs(err, ErrZeroAddress)
}

func TestParseDatabaseID(t *testing.T) {
	require := require.New(t)
	id, err := ParseDatabaseID("7")
	require.NoError(err)
	require.Equal(uint64(7), id)
	for _, s := range []string{"0", "-1", "x", ""} {
		_, err := ParseDatabaseID(s)
		require.ErrorIs(err, ErrInvalidID)
	}
}

func TestIDFromBig(t *testing.T) {
	require := require.New(t)
	id, err := IDFromBig(big.NewInt(3))
	require.NoError(err)
	require.Equal(uint64(3), id)

	_, err = IDFromBig(nil)
	require.ErrorIs(err, ErrInvalidID)
	_, err = IDFromBig(big.NewInt(-1))
	require.ErrorIs(err, ErrInvalidID)
	_, err = IDFromBig(new(big.Int).Lsh(big.NewInt(1), 64))
	require.ErrorIs(err, ErrInvalidID)
}

func TestIsOwnedBy(t *testing.T) {
	owner := common.HexToAddress("0x01")
	r := &Record{ID: 1, Owner: owner}
	require.True(t, r.IsOwnedBy(owner))
	require.False(t, r.IsOwnedBy(common.HexToAddress("0x02")))
}
