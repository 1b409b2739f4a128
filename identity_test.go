// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package depository

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestGenerateIdentity(t *testing.T) {
	require := require.New(t)
	a, err := GenerateIdentity()
	require.NoError(err)
	b, err := GenerateIdentity()
	require.NoError(err)
	require.NotEqual(common.Address{}, a)
	require.NotEqual(a, b)
}

func TestCommitmentOf(t *testing.T) {
	require := require.New(t)
	identifier := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	// abi.encode(address) left pads the address to a full word.
	expected := crypto.Keccak256Hash(common.LeftPadBytes(identifier.Bytes(), 32))
	require.Equal(expected, CommitmentOf(identifier))
	require.Equal(CommitmentOf(identifier), CommitmentOf(identifier))
	require.NotEqual(CommitmentOf(identifier), CommitmentOf(common.HexToAddress("0x01")))
}

func TestVerifyCommitment(t *testing.T) {
	require := require.New(t)
	identifier, err := GenerateIdentity()
	require.NoError(err)
	require.NoError(VerifyCommitment(identifier, CommitmentOf(identifier)))

	err = VerifyCommitment(identifier, common.Hash{1})
	require.ErrorIs(err, ErrCommitmentMismatch)
	require.True(IsIntegrity(err))

	err = VerifyCommitment(identifier, common.Hash{})
	require.ErrorIs(err, ErrCommitmentMismatch)
}
