// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/depository/ledger"
)

func TestRunDemo(t *testing.T) {
	require := require.New(t)
	var out bytes.Buffer
	require.NoError(runDemo(context.Background(), zaptest.NewLogger(t), &out, 31337))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(lines, 7)
	require.Contains(lines[0], `created database 1 "My DB"`)
	require.Contains(lines[3], "owner decrypts 1234")
	require.Contains(lines[4], "it decrypts 1234")
	require.Contains(lines[5], "rejected")
	require.Equal("zero commitment rejected, 1 value stored", lines[6])
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{level: "debug"},
		{level: "info"},
		{level: "error"},
		{level: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := newLogger(tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestNamedEvents(t *testing.T) {
	require := require.New(t)
	events := []ledger.Event{
		&ledger.DatabaseCreated{ID: 1, DBName: "db"},
		&ledger.DecryptorGranted{ID: 1, Account: common.HexToAddress("0x01")},
	}
	var out bytes.Buffer
	require.NoError(printJSON(&out, namedEvents(events)))

	var decoded []struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(json.Unmarshal(out.Bytes(), &decoded))
	require.Len(decoded, 2)
	require.Equal(ledger.EventDatabaseCreated, decoded[0].Event)
	require.Equal(ledger.EventDecryptorGranted, decoded[1].Event)
}

func TestLoadKey(t *testing.T) {
	require := require.New(t)
	key, err := loadKey("")
	require.NoError(err)
	require.Nil(key)

	key, err = loadKey("0x" + strings.Repeat("11", 32))
	require.NoError(err)
	require.NotNil(key)

	_, err = loadKey("0x1234")
	require.Error(err)
}
