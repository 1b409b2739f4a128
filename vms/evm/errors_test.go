// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/ledger"
)

func TestDecodeRevert(t *testing.T) {
	notFound, err := packRevert(ledger.ErrorDatabaseNotFound, big.NewInt(4))
	require.NoError(t, err)
	notOwner, err := packRevert(ledger.ErrorNotDatabaseOwner, big.NewInt(1), common.HexToAddress("0x02"))
	require.NoError(t, err)
	reason, err := packErrorString("bad proof")
	require.NoError(t, err)
	plain := errors.New("connection refused")

	tests := []struct {
		name         string
		err          error
		expectedErr  error
		expectedName string
		revert       bool
	}{
		{name: "nil"},
		{name: "no revert data", err: plain, expectedErr: plain},
		{name: "short revert data", err: &dataError{data: "0x01"}},
		{
			name:         "custom error",
			err:          &dataError{data: hexutil.Encode(notFound)},
			expectedErr:  depository.ErrDatabaseNotFound,
			expectedName: ledger.ErrorDatabaseNotFound,
			revert:       true,
		},
		{
			name:         "custom error with address",
			err:          &dataError{data: hexutil.Encode(notOwner)},
			expectedErr:  depository.ErrNotDatabaseOwner,
			expectedName: ledger.ErrorNotDatabaseOwner,
			revert:       true,
		},
		{
			name:        "reason string",
			err:         &dataError{data: hexutil.Encode(reason)},
			expectedErr: depository.ErrTxReverted,
			revert:      true,
		},
		{
			name:        "unknown selector",
			err:         &dataError{data: "0xdeadbeef"},
			expectedErr: depository.ErrTxReverted,
			revert:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			err := decodeRevert(tt.err)
			if tt.err == nil {
				require.NoError(err)
				return
			}
			require.Error(err)
			if tt.expectedErr != nil {
				require.ErrorIs(err, tt.expectedErr)
			}
			require.Equal(tt.revert, ledger.IsRevert(err))
			var revert *ledger.RevertError
			if errors.As(err, &revert) {
				require.Equal(tt.expectedName, revert.Name)
			}
		})
	}
}

func TestDecodeRevertArgs(t *testing.T) {
	require := require.New(t)

	data, err := packRevert(ledger.ErrorAddressAlreadyAuthorized, big.NewInt(9), common.HexToAddress("0x03"))
	require.NoError(err)
	err = decodeRevert(&dataError{data: hexutil.Encode(data)})
	var revert *ledger.RevertError
	require.ErrorAs(err, &revert)
	require.Len(revert.Args, 2)
	require.Equal(big.NewInt(9), revert.Args[0])
	require.Equal(common.HexToAddress("0x03"), revert.Args[1])
	require.Contains(err.Error(), "AddressAlreadyAuthorized(9, 0x0000000000000000000000000000000000000003)")

	_, err = packRevert("NoSuchError")
	require.Error(err)
}
