// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/config"
	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/utils"
	"github.com/luxfi/depository/vms/evm/signer"
)

const (
	// If the max base fee is not explicitly set, use 3x the current base fee estimate
	defaultBaseFeeFactor = 3
)

var (
	_ ledger.Registry    = (*RegistryClient)(nil)
	_ ledger.EventSource = (*RegistryClient)(nil)
)

// Client is the subset of ethclient.Client the registry client uses.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// RegistryClient talks to a deployed registry contract through go-ethereum.
type RegistryClient struct {
	logger               *zap.Logger
	client               Client
	address              common.Address
	signer               signer.Signer
	evmChainID           *big.Int
	nonceLock            *sync.Mutex
	currentNonce         uint64
	gasLimit             uint64
	maxBaseFee           *big.Int
	maxPriorityFeePerGas *big.Int
	txInclusionTimeout   time.Duration
	subscriber           *Subscriber
}

func NewRegistryClient(
	ctx context.Context,
	logger *zap.Logger,
	client Client,
	sgnr signer.Signer,
	cfg *config.Config,
) (*RegistryClient, error) {
	address := cfg.Registry()
	logger = logger.With(zap.Stringer("registry", address))

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Error(
			"Failed to get chain ID from rpc endpoint",
			zap.Error(err),
		)
		return nil, err
	}

	// Construct txs using the pending nonce to account for restarts due to
	// long-pending txs in the mempool
	pendingNonce, err := client.PendingNonceAt(ctx, sgnr.Address())
	if err != nil {
		logger.Error(
			"Failed to get pending nonce",
			zap.Error(err),
		)
		return nil, err
	}

	logger.Info(
		"Initialized registry client",
		zap.String("evmChainID", evmChainID.String()),
		zap.Stringer("sender", sgnr.Address()),
		zap.Uint64("pendingNonce", pendingNonce),
	)

	return &RegistryClient{
		logger:               logger,
		client:               client,
		address:              address,
		signer:               sgnr,
		evmChainID:           evmChainID,
		nonceLock:            new(sync.Mutex),
		currentNonce:         pendingNonce,
		gasLimit:             cfg.GasLimit,
		maxBaseFee:           cfg.MaxBaseFeeWei(),
		maxPriorityFeePerGas: cfg.MaxPriorityFeePerGasWei(),
		txInclusionTimeout:   cfg.TxInclusionTimeout(),
		subscriber:           NewSubscriber(logger, client, address),
	}, nil
}

func (c *RegistryClient) Address() common.Address {
	return c.address
}

func (c *RegistryClient) From() common.Address {
	return c.signer.Address()
}

func (c *RegistryClient) ChainID() *big.Int {
	return new(big.Int).Set(c.evmChainID)
}

func (c *RegistryClient) CreateDatabase(
	ctx context.Context,
	name string,
	commitment common.Hash,
	identifier depository.Handle,
	proof []byte,
) (ledger.Pending, error) {
	if err := ledger.ValidateCreate(name, commitment, identifier, proof); err != nil {
		return nil, err
	}
	return c.sendTx(ctx, methodCreateDatabase, name, [32]byte(commitment), [32]byte(identifier), proof)
}

func (c *RegistryClient) StoreEncryptedValue(
	ctx context.Context,
	id uint64,
	commitment common.Hash,
	value depository.Handle,
	proof []byte,
) (ledger.Pending, error) {
	if err := ledger.ValidateStore(id, commitment, value, proof); err != nil {
		return nil, err
	}
	return c.sendTx(ctx, methodStoreEncryptedValue, new(big.Int).SetUint64(id), [32]byte(commitment), [32]byte(value), proof)
}

func (c *RegistryClient) GrantDecryptPermission(ctx context.Context, id uint64, account common.Address) (ledger.Pending, error) {
	if err := ledger.ValidateGrant(id, account); err != nil {
		return nil, err
	}
	return c.sendTx(ctx, methodGrantDecryptPermission, new(big.Int).SetUint64(id), account)
}

// SendTx constructs, signs, and broadcasts a call of method. If the maximum
// base fee value is not configured, the maximum base fee is the current base
// fee multiplied by the default base fee factor. The maximum priority fee per
// gas is the minimum of the suggested gas tip cap and the configured maximum
// priority fee per gas. The max fee per gas is their sum.
func (c *RegistryClient) sendTx(ctx context.Context, method string, args ...interface{}) (ledger.Pending, error) {
	callData, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	// If the max base fee isn't explicitly set, then default to fetching the
	// current base fee estimate and multiply it by `BaseFeeFactor` to allow for
	// an increase prior to the transaction being included in a block.
	var maxBaseFee *big.Int
	if c.maxBaseFee.Sign() > 0 {
		maxBaseFee = c.maxBaseFee
	} else {
		baseFeeCtx, baseFeeCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer baseFeeCtxCancel()
		header, err := c.client.HeaderByNumber(baseFeeCtx, nil)
		if err != nil {
			c.logger.Error(
				"Failed to get base fee",
				zap.Error(err),
			)
			return nil, err
		}
		maxBaseFee = new(big.Int)
		if header.BaseFee != nil {
			maxBaseFee.Mul(header.BaseFee, big.NewInt(defaultBaseFeeFactor))
		}
	}

	// Get the suggested gas tip cap of the network
	gasTipCapCtx, gasTipCapCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer gasTipCapCtxCancel()
	gasTipCap, err := c.client.SuggestGasTipCap(gasTipCapCtx)
	if err != nil {
		c.logger.Error(
			"Failed to get gas tip cap",
			zap.Error(err),
		)
		return nil, err
	}
	if gasTipCap.Cmp(c.maxPriorityFeePerGas) > 0 {
		gasTipCap = c.maxPriorityFeePerGas
	}
	gasFeeCap := new(big.Int).Add(maxBaseFee, gasTipCap)

	gasLimit := c.gasLimit
	if gasLimit == 0 {
		estimateCtx, estimateCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer estimateCtxCancel()
		gasLimit, err = c.client.EstimateGas(estimateCtx, ethereum.CallMsg{
			From:      c.signer.Address(),
			To:        &c.address,
			GasFeeCap: gasFeeCap,
			GasTipCap: gasTipCap,
			Data:      callData,
		})
		if err != nil {
			err = decodeRevert(err)
			c.logger.Error(
				"Failed to estimate gas",
				zap.String("method", method),
				zap.Error(err),
			)
			return nil, err
		}
	}

	// Synchronize nonce access so that we send transactions in nonce order.
	c.nonceLock.Lock()
	defer c.nonceLock.Unlock()

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.evmChainID,
		Nonce:     c.currentNonce,
		To:        &c.address,
		Gas:       gasLimit,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Value:     big.NewInt(0),
		Data:      callData,
	})

	signedTx, err := c.signer.SignTx(tx, c.evmChainID)
	if err != nil {
		c.logger.Error(
			"Failed to sign transaction",
			zap.Error(err),
		)
		return nil, err
	}

	sendTxCtx, sendTxCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer sendTxCtxCancel()

	c.logger.Info(
		"Sending transaction",
		zap.String("method", method),
		zap.String("txID", signedTx.Hash().String()),
		zap.Uint64("nonce", c.currentNonce),
	)
	if err := c.client.SendTransaction(sendTxCtx, signedTx); err != nil {
		err = decodeRevert(err)
		c.logger.Error(
			"Failed to send transaction",
			zap.String("method", method),
			zap.Error(err),
		)
		return nil, err
	}
	c.currentNonce++

	return &pendingTx{client: c, hash: signedTx.Hash(), method: method}, nil
}

type pendingTx struct {
	client *RegistryClient
	hash   common.Hash
	method string
}

func (p *pendingTx) Hash() common.Hash {
	return p.hash
}

func (p *pendingTx) Wait(ctx context.Context) (*ledger.Receipt, error) {
	return p.client.waitForReceipt(ctx, p.hash)
}

func (c *RegistryClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*ledger.Receipt, error) {
	var receipt *types.Receipt
	operation := func() (err error) {
		callCtx, callCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer callCtxCancel()
		receipt, err = c.client.TransactionReceipt(callCtx, txHash)
		return err
	}
	err := utils.WithRetriesTimeout(ctx, c.logger, operation, c.txInclusionTimeout, "waitForReceipt")
	if err != nil {
		c.logger.Error(
			"Failed to get transaction receipt",
			zap.String("txID", txHash.String()),
			zap.Error(err),
		)
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		c.logger.Error(
			"Transaction failed",
			zap.String("txID", txHash.String()),
		)
		return nil, fmt.Errorf("%w: %s", depository.ErrTxReverted, txHash.Hex())
	}

	events, err := parseLogs(receipt.Logs)
	if err != nil {
		c.logger.Error(
			"Failed to parse receipt logs",
			zap.String("txID", txHash.String()),
			zap.Error(err),
		)
		return nil, err
	}
	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	return &ledger.Receipt{
		TxHash:      txHash,
		BlockNumber: blockNumber,
		Events:      events,
	}, nil
}

// call runs a read-only method against the latest block and unpacks its
// outputs.
func (c *RegistryClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	callCtx, callCtxCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer callCtxCancel()
	result, err := c.client.CallContract(callCtx, ethereum.CallMsg{
		From: c.signer.Address(),
		To:   &c.address,
		Data: callData,
	}, nil)
	if err != nil {
		err = decodeRevert(err)
		if !ledger.IsRevert(err) {
			c.logger.Error(
				"Failed to call registry",
				zap.String("method", method),
				zap.Error(err),
			)
		}
		return nil, err
	}
	out, err := registryABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(out))
	}
	return out, nil
}

func (c *RegistryClient) GetOwnedDatabases(ctx context.Context, owner common.Address) ([]uint64, error) {
	out, err := c.call(ctx, methodGetOwnedDatabases, owner)
	if err != nil {
		return nil, err
	}
	bigIDs, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", methodGetOwnedDatabases, out[0])
	}
	ids := make([]uint64, len(bigIDs))
	for i, v := range bigIDs {
		if ids[i], err = depository.IDFromBig(v); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (c *RegistryClient) GetDatabase(ctx context.Context, id uint64) (*depository.Record, error) {
	out, err := c.call(ctx, methodGetDatabase, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	info, ok := abi.ConvertType(out[0], new(databaseInfo)).(*databaseInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", methodGetDatabase, out[0])
	}
	if info.EncryptedValueCount == nil || !info.EncryptedValueCount.IsUint64() {
		return nil, errors.New("invalid encrypted value count")
	}
	return &depository.Record{
		ID:                  id,
		Name:                info.Name,
		Owner:               info.Owner,
		CreatedAt:           time.Unix(int64(info.CreatedAt), 0),
		EncryptedIdentifier: depository.Handle(info.EncryptedDatabaseAddress),
		Commitment:          common.Hash(info.AddressCommitment),
		ValueCount:          info.EncryptedValueCount.Uint64(),
	}, nil
}

func (c *RegistryClient) GetDatabaseDecryptors(ctx context.Context, id uint64) ([]common.Address, error) {
	out, err := c.call(ctx, methodGetDatabaseDecryptors, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	addresses, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", methodGetDatabaseDecryptors, out[0])
	}
	return addresses, nil
}

func (c *RegistryClient) GetDatabaseValues(ctx context.Context, id uint64) ([]depository.Handle, error) {
	out, err := c.call(ctx, methodGetDatabaseValues, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", methodGetDatabaseValues, out[0])
	}
	handles := make([]depository.Handle, len(raw))
	for i, h := range raw {
		handles[i] = depository.Handle(h)
	}
	return handles, nil
}

func (c *RegistryClient) TotalDatabases(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, methodTotalDatabases)
	if err != nil {
		return 0, err
	}
	total, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected %s output %T", methodTotalDatabases, out[0])
	}
	return depository.IDFromBig(total)
}

func (c *RegistryClient) FetchEvents(ctx context.Context, fromBlock uint64) ([]ledger.Event, error) {
	return c.subscriber.FetchEvents(ctx, fromBlock)
}
