// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/ledger"
)

var errUnknownEvent = errors.New("unknown registry event")

// eventTopics are the topic-0 values of every registry event.
func eventTopics() []common.Hash {
	return []common.Hash{
		registryABI.Events[ledger.EventDatabaseCreated].ID,
		registryABI.Events[ledger.EventDecryptorGranted].ID,
		registryABI.Events[ledger.EventEncryptedValueStored].ID,
	}
}

func parseLogs(logs []*types.Log) ([]ledger.Event, error) {
	events := make([]ledger.Event, 0, len(logs))
	for _, l := range logs {
		event, err := parseLog(l)
		if errors.Is(err, errUnknownEvent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// parseLog decodes a registry log. Every registry event indexes the database
// id and one address.
func parseLog(l *types.Log) (ledger.Event, error) {
	if len(l.Topics) == 0 {
		return nil, errUnknownEvent
	}
	abiEvent, err := registryABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, errUnknownEvent
	}
	if len(l.Topics) != 3 {
		return nil, fmt.Errorf("%s log has %d topics", abiEvent.Name, len(l.Topics))
	}
	id, err := depository.IDFromBig(new(big.Int).SetBytes(l.Topics[1].Bytes()))
	if err != nil {
		return nil, err
	}
	account := common.BytesToAddress(l.Topics[2].Bytes())
	data, err := abiEvent.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", abiEvent.Name, err)
	}
	meta := ledger.EventMeta{
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}

	switch abiEvent.Name {
	case ledger.EventDatabaseCreated:
		if len(data) != 2 {
			return nil, fmt.Errorf("%s has %d data fields", abiEvent.Name, len(data))
		}
		name, _ := data[0].(string)
		commitment, _ := data[1].([32]byte)
		return &ledger.DatabaseCreated{
			EventMeta:  meta,
			ID:         id,
			Owner:      account,
			DBName:     name,
			Commitment: commitment,
		}, nil
	case ledger.EventDecryptorGranted:
		return &ledger.DecryptorGranted{
			EventMeta: meta,
			ID:        id,
			Account:   account,
		}, nil
	case ledger.EventEncryptedValueStored:
		if len(data) != 1 {
			return nil, fmt.Errorf("%s has %d data fields", abiEvent.Name, len(data))
		}
		index, _ := data[0].(*big.Int)
		if index == nil || !index.IsUint64() {
			return nil, fmt.Errorf("%s has invalid value index", abiEvent.Name)
		}
		return &ledger.EncryptedValueStored{
			EventMeta:  meta,
			ID:         id,
			Owner:      account,
			ValueIndex: index.Uint64(),
		}, nil
	default:
		return nil, errUnknownEvent
	}
}
