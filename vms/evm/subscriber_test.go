// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/depository/ledger"
)

func TestFetchEvents(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.newClient(t)

	id, commitment := env.create(t, client, "db")
	_, err := env.store(t, client, id, commitment, 1)
	require.NoError(err)
	pending, err := client.GrantDecryptPermission(ctx, id, common.HexToAddress("0x01"))
	require.NoError(err)
	_, err = pending.Wait(ctx)
	require.NoError(err)

	events, err := client.FetchEvents(ctx, 0)
	require.NoError(err)
	require.Len(events, 3)
	require.Equal(ledger.EventDatabaseCreated, events[0].Name())
	require.Equal(ledger.EventEncryptedValueStored, events[1].Name())
	require.Equal(ledger.EventDecryptorGranted, events[2].Name())
	for i, e := range events {
		require.Equal(id, e.DatabaseID())
		require.Equal(uint64(i+1), e.Meta().BlockNumber)
	}
	created, ok := events[0].(*ledger.DatabaseCreated)
	require.True(ok)
	require.Equal("db", created.DBName)
	require.Equal(commitment, created.Commitment)
	require.Equal(client.From(), created.Owner)

	events, err = client.FetchEvents(ctx, 3)
	require.NoError(err)
	require.Len(events, 1)
}

func TestFetchEventsRanges(t *testing.T) {
	tests := []struct {
		name      string
		fromBlock uint64
		latest    uint64
		expected  [][2]uint64
	}{
		{
			name:     "single range",
			latest:   10,
			expected: [][2]uint64{{0, 10}},
		},
		{
			name:     "clamped to latest",
			latest:   450,
			expected: [][2]uint64{{0, 199}, {200, 399}, {400, 450}},
		},
		{
			name:      "exact multiple",
			fromBlock: 100,
			latest:    499,
			expected:  [][2]uint64{{100, 299}, {300, 499}},
		},
		{
			name:      "from past latest",
			fromBlock: 20,
			latest:    10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			env := newTestEnv(t)
			env.backend.latestBlock = tt.latest
			client := env.newClient(t)

			events, err := client.FetchEvents(context.Background(), tt.fromBlock)
			require.NoError(err)
			require.Empty(events)
			require.Len(env.backend.queries, len(tt.expected))
			for i, q := range env.backend.queries {
				require.Equal(tt.expected[i][0], q.FromBlock.Uint64())
				require.Equal(tt.expected[i][1], q.ToBlock.Uint64())
				require.Equal([]common.Address{client.Address()}, q.Addresses)
				require.Len(q.Topics[0], 3)
			}
		})
	}
}
