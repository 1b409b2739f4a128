// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/config"
	"github.com/luxfi/depository/crypto/fhe"
	"github.com/luxfi/depository/crypto/fhe/coprocessor"
	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/ledger/simulated"
	"github.com/luxfi/depository/vms/evm/signer"
)

type testEnv struct {
	backend *fakeBackend
	chain   *simulated.Chain
	sdk     *fhe.Client
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	coproc, err := coprocessor.New(zaptest.NewLogger(t), coprocessor.Config{ChainID: 31337})
	require.NoError(t, err)
	chain := simulated.NewChain(zaptest.NewLogger(t), simulated.Config{
		ACL:      coproc,
		Verifier: coproc,
	})
	cfg, err := config.NewConfig(viper.New())
	require.NoError(t, err)
	cfg.RegistryAddress = chain.Address().Hex()
	return &testEnv{
		backend: newFakeBackend(chain),
		chain:   chain,
		sdk:     fhe.NewClient(zaptest.NewLogger(t), coproc),
		cfg:     &cfg,
	}
}

func (e *testEnv) newClient(t *testing.T) *RegistryClient {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewRegistryClient(
		context.Background(),
		zaptest.NewLogger(t),
		e.backend,
		signer.NewTxSignerFromKey(key),
		e.cfg,
	)
	require.NoError(t, err)
	return client
}

// create registers a database owned by the client's sender.
func (e *testEnv) create(t *testing.T, c *RegistryClient, name string) (uint64, common.Hash) {
	require := require.New(t)
	ctx := context.Background()

	secret, err := depository.GenerateIdentity()
	require.NoError(err)
	input, err := e.sdk.EncryptAddress(ctx, c.Address(), c.From(), secret)
	require.NoError(err)
	commitment := depository.CommitmentOf(secret)
	pending, err := c.CreateDatabase(ctx, name, commitment, input.Handles[0], input.InputProof)
	require.NoError(err)
	receipt, err := pending.Wait(ctx)
	require.NoError(err)
	require.Equal(pending.Hash(), receipt.TxHash)
	created, err := receipt.Created()
	require.NoError(err)
	return created.ID, commitment
}

func (e *testEnv) store(t *testing.T, c *RegistryClient, id uint64, commitment common.Hash, v uint32) (*ledger.Receipt, error) {
	ctx := context.Background()
	input, err := e.sdk.EncryptUint32(ctx, c.Address(), c.From(), v)
	require.NoError(t, err)
	pending, err := c.StoreEncryptedValue(ctx, id, commitment, input.Handles[0], input.InputProof)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

func TestRegistryRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.newClient(t)

	id, commitment := env.create(t, owner, "My DB")
	require.Equal(uint64(1), id)

	record, err := owner.GetDatabase(ctx, id)
	require.NoError(err)
	require.Equal("My DB", record.Name)
	require.Equal(owner.From(), record.Owner)
	require.Equal(commitment, record.Commitment)
	require.False(record.EncryptedIdentifier.IsZero())

	receipt, err := env.store(t, owner, id, commitment, 1234)
	require.NoError(err)
	require.Len(receipt.Events, 1)
	stored, ok := receipt.Events[0].(*ledger.EncryptedValueStored)
	require.True(ok)
	require.Zero(stored.ValueIndex)

	bob := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	pending, err := owner.GrantDecryptPermission(ctx, id, bob)
	require.NoError(err)
	_, err = pending.Wait(ctx)
	require.NoError(err)

	owned, err := owner.GetOwnedDatabases(ctx, owner.From())
	require.NoError(err)
	require.Equal([]uint64{id}, owned)
	decryptors, err := owner.GetDatabaseDecryptors(ctx, id)
	require.NoError(err)
	require.Equal([]common.Address{owner.From(), bob}, decryptors)
	values, err := owner.GetDatabaseValues(ctx, id)
	require.NoError(err)
	require.Len(values, 1)
	require.Equal(fhe.TypeUint32, fhe.HandleType(values[0]))
	total, err := owner.TotalDatabases(ctx)
	require.NoError(err)
	require.Equal(uint64(1), total)

	// Three writes, three nonces.
	require.Len(env.backend.sent, 3)
	for i, tx := range env.backend.sent {
		require.Equal(uint64(i), tx.Nonce())
	}
}

func TestRegistryReverts(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.newClient(t)
	other := env.newClient(t)

	id, commitment := env.create(t, owner, "db")

	_, err := other.GrantDecryptPermission(ctx, id, other.From())
	require.ErrorIs(err, depository.ErrNotDatabaseOwner)
	require.True(ledger.IsRevert(err))

	_, err = owner.GrantDecryptPermission(ctx, id, owner.From())
	require.ErrorIs(err, depository.ErrAddressAlreadyAuthorized)

	_, err = env.store(t, owner, id, common.Hash{1}, 5)
	require.ErrorIs(err, depository.ErrInvalidCommitment)

	_, err = owner.GetDatabase(ctx, 99)
	require.ErrorIs(err, depository.ErrDatabaseNotFound)

	// An input proof bound to another sender is rejected by the contract.
	input, err := env.sdk.EncryptUint32(ctx, owner.Address(), other.From(), 5)
	require.NoError(err)
	_, err = owner.StoreEncryptedValue(ctx, id, commitment, input.Handles[0], input.InputProof)
	require.ErrorIs(err, depository.ErrTxReverted)

	// Validation happens before anything is sent.
	_, err = owner.GrantDecryptPermission(ctx, id, common.Address{})
	require.ErrorIs(err, depository.ErrZeroAddress)
	require.Equal(depository.KindValidation, depository.KindOf(err))

	// Rejected sends do not consume a nonce.
	receipt, err := env.store(t, owner, id, commitment, 5)
	require.NoError(err)
	require.NotNil(receipt)
	var nonces []uint64
	for _, tx := range env.backend.sent {
		nonces = append(nonces, tx.Nonce())
	}
	require.Equal([]uint64{0, 1}, nonces[len(nonces)-2:])
}

func TestRegistryFees(t *testing.T) {
	tests := []struct {
		name              string
		maxBaseFee        uint64
		maxPriorityFee    uint64
		gasLimit          uint64
		suggestedTip      int64
		expectedTip       int64
		expectedFeeCap    int64
		expectedGas       uint64
		expectedEstimates int
	}{
		{
			name:              "estimated",
			maxPriorityFee:    2_500_000_000,
			suggestedTip:      1_000_000_000,
			expectedTip:       1_000_000_000,
			expectedFeeCap:    3*1_000_000_000 + 1_000_000_000,
			expectedGas:       300_000,
			expectedEstimates: 1,
		},
		{
			name:              "tip clamped",
			maxPriorityFee:    2_500_000_000,
			suggestedTip:      10_000_000_000,
			expectedTip:       2_500_000_000,
			expectedFeeCap:    3*1_000_000_000 + 2_500_000_000,
			expectedGas:       300_000,
			expectedEstimates: 1,
		},
		{
			name:           "configured",
			maxBaseFee:     50_000_000_000,
			maxPriorityFee: 1,
			gasLimit:       1_000_000,
			suggestedTip:   5,
			expectedTip:    1,
			expectedFeeCap: 50_000_000_001,
			expectedGas:    1_000_000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			env := newTestEnv(t)
			env.cfg.MaxBaseFee = tt.maxBaseFee
			env.cfg.MaxPriorityFeePerGas = tt.maxPriorityFee
			env.cfg.GasLimit = tt.gasLimit
			env.backend.tipCap = big.NewInt(tt.suggestedTip)
			client := env.newClient(t)

			env.create(t, client, "db")
			require.Len(env.backend.sent, 1)
			tx := env.backend.sent[0]
			require.Equal(big.NewInt(tt.expectedTip), tx.GasTipCap())
			require.Equal(big.NewInt(tt.expectedFeeCap), tx.GasFeeCap())
			require.Equal(tt.expectedGas, tx.Gas())
			require.Equal(client.Address(), *tx.To())
			require.Equal(tt.expectedEstimates, env.backend.estimateCalls)
		})
	}
}

func TestWaitForReceipt(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	env.backend.notFoundPolls = 1
	client := env.newClient(t)

	id, _ := env.create(t, client, "db")
	require.Equal(uint64(1), id)

	env.backend.failStatus = true
	pending, err := client.GrantDecryptPermission(ctx, id, common.HexToAddress("0x01"))
	require.NoError(err)
	_, err = pending.Wait(ctx)
	require.ErrorIs(err, depository.ErrTxReverted)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = client.waitForReceipt(cancelled, common.Hash{1})
	require.ErrorIs(err, context.Canceled)
}

func TestNewRegistryClientNonce(t *testing.T) {
	env := newTestEnv(t)
	env.backend.pendingNonce = 7
	client := env.newClient(t)

	env.create(t, client, "db")
	require.Equal(t, uint64(7), env.backend.sent[0].Nonce())
	require.Equal(t, big.NewInt(31337), client.ChainID())
}
