// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/depository/crypto/eip712"
)

// Well-known development key.
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewTxSigner(t *testing.T) {
	require := require.New(t)

	s, err := NewTxSigner(testKey)
	require.NoError(err)
	require.Equal(common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	_, err = NewTxSigner("0x1234")
	require.Error(err)

	unprefixed, err := NewTxSigner(testKey[2:])
	require.NoError(err)
	require.Equal(s.Address(), unprefixed.Address())
}

func TestSignTx(t *testing.T) {
	require := require.New(t)

	s, err := NewTxSigner(testKey)
	require.NoError(err)
	chainID := big.NewInt(31337)
	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		To:        &to,
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
	})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(err)
	require.Equal(s.Address(), sender)
}

func TestSignTypedData(t *testing.T) {
	require := require.New(t)

	s, err := NewTxSigner(testKey)
	require.NoError(err)
	key, err := crypto.GenerateKey()
	require.NoError(err)

	req, err := eip712.NewUserDecryptRequest(
		crypto.FromECDSAPub(&key.PublicKey),
		[]common.Address{common.HexToAddress("0x02")},
		time.Now(),
		eip712.DefaultDurationDays,
	)
	require.NoError(err)
	domain := eip712.Domain{ChainID: 31337, VerifyingContract: common.HexToAddress("0x03")}

	sig, err := s.SignTypedData(req.TypedData(domain))
	require.NoError(err)
	require.Len(sig, crypto.SignatureLength)
	require.GreaterOrEqual(sig[crypto.RecoveryIDOffset], byte(27))
	require.NoError(req.Verify(domain, sig, s.Address()))
}
