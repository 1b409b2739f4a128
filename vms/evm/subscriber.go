// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/utils"
)

const MaxBlocksPerRequest = 200

var ErrFailedToProcessLogs = errors.New("failed to process logs")

// LogReader is the part of Client the subscriber needs.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Subscriber reads registry events out of historical blocks.
type Subscriber struct {
	logger  *zap.Logger
	client  LogReader
	address common.Address
}

func NewSubscriber(logger *zap.Logger, client LogReader, address common.Address) *Subscriber {
	return &Subscriber{
		logger:  logger,
		client:  client,
		address: address,
	}
}

// FetchEvents returns the registry events from fromBlock to the latest block.
// Limits the number of blocks retrieved in a single eth_getLogs request to
// `MaxBlocksPerRequest`; if processing more than that, multiple eth_getLogs
// requests will be made.
func (s *Subscriber) FetchEvents(ctx context.Context, fromBlock uint64) ([]ledger.Event, error) {
	s.logger.Debug(
		"Processing historical logs",
		zap.Uint64("fromBlockHeight", fromBlock),
	)

	// Grab the latest block before filtering logs so the range is fixed
	latestBlockHeightCtx, latestBlockHeightCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer latestBlockHeightCtxCancel()
	latestBlockHeight, err := s.client.BlockNumber(latestBlockHeightCtx)
	if err != nil {
		s.logger.Error(
			"Failed to get latest block",
			zap.Error(err),
		)
		return nil, err
	}

	var events []ledger.Event
	for from := fromBlock; from <= latestBlockHeight; from += MaxBlocksPerRequest {
		to := from + MaxBlocksPerRequest - 1
		if to > latestBlockHeight {
			to = latestBlockHeight
		}
		rangeEvents, err := s.processBlockRange(ctx, from, to)
		if err != nil {
			return nil, err
		}
		events = append(events, rangeEvents...)
	}
	ledger.SortEvents(events)
	return events, nil
}

// Process registry logs from the block range [fromBlock, toBlock], inclusive
func (s *Subscriber) processBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]ledger.Event, error) {
	logs, err := s.getFilterLogsByBlockRangeRetryable(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*types.Log, len(logs))
	for i := range logs {
		ptrs[i] = &logs[i]
	}
	events, err := parseLogs(ptrs)
	if err != nil {
		s.logger.Error(
			"Failed to parse logs",
			zap.Uint64("fromBlock", fromBlock),
			zap.Uint64("toBlock", toBlock),
			zap.Error(err),
		)
		return nil, err
	}
	return events, nil
}

func (s *Subscriber) getFilterLogsByBlockRangeRetryable(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	operation := func() (err error) {
		cctx, cancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer cancel()
		logs, err = s.client.FilterLogs(cctx, ethereum.FilterQuery{
			Topics:    [][]common.Hash{eventTopics()},
			Addresses: []common.Address{s.address},
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
		})
		return err
	}
	err := utils.WithRetriesTimeout(ctx, s.logger, operation, utils.DefaultRPCTimeout, "get filter logs by block range")
	if err != nil {
		s.logger.Error(
			"Failed to get filter logs by block range",
			zap.Uint64("fromBlock", fromBlock),
			zap.Uint64("toBlock", toBlock),
			zap.Error(err),
		)
		return nil, errors.Join(ErrFailedToProcessLogs, err)
	}
	return logs, nil
}
