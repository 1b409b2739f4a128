// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/ledger/simulated"
)

var _ Client = (*fakeBackend)(nil)

// dataError is how a JSON-RPC node reports a revert.
type dataError struct {
	data string
}

func (e *dataError) Error() string          { return "execution reverted" }
func (e *dataError) ErrorCode() int         { return 3 }
func (e *dataError) ErrorData() interface{} { return e.data }

// fakeBackend is a JSON-RPC node in front of a simulated registry. Writes are
// mined when sent, and revert data is returned from SendTransaction.
type fakeBackend struct {
	chain   *simulated.Chain
	chainID *big.Int

	lock          sync.Mutex
	baseFee       *big.Int
	tipCap        *big.Int
	pendingNonce  uint64
	gasEstimate   uint64
	estimateCalls int
	// notFoundPolls is the number of receipt polls answered with NotFound
	// before a receipt is returned.
	notFoundPolls int
	// failStatus mines writes with a failed status and no state change.
	failStatus bool
	// latestBlock overrides the chain height when non-zero.
	latestBlock uint64

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
	queries  []ethereum.FilterQuery
}

func newFakeBackend(chain *simulated.Chain) *fakeBackend {
	return &fakeBackend{
		chain:       chain,
		chainID:     big.NewInt(31337),
		baseFee:     big.NewInt(1_000_000_000),
		tipCap:      big.NewInt(1_000_000_000),
		gasEstimate: 300_000,
		receipts:    make(map[common.Hash]*types.Receipt),
		polls:       make(map[common.Hash]int),
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.latestBlock != 0 {
		return f.latestBlock, nil
	}
	return f.chain.BlockNumber(), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return &types.Header{
		Number:  new(big.Int).SetUint64(f.chain.BlockNumber()),
		BaseFee: new(big.Int).Set(f.baseFee),
	}, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.estimateCalls++
	return f.gasEstimate, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.pendingNonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tipCap), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	sender, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return err
	}
	method, args, err := decodeCall(tx.Data())
	if err != nil {
		return err
	}
	if f.failStatus {
		f.sent = append(f.sent, tx)
		f.receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusFailed,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(f.chain.BlockNumber()),
		}
		return nil
	}

	var receipt *ledger.Receipt
	switch method {
	case methodCreateDatabase:
		receipt, err = f.chain.CreateDatabase(
			sender,
			args[0].(string),
			args[1].([32]byte),
			depository.Handle(args[2].([32]byte)),
			args[3].([]byte),
		)
	case methodStoreEncryptedValue:
		receipt, err = f.chain.StoreEncryptedValue(
			sender,
			args[0].(*big.Int).Uint64(),
			args[1].([32]byte),
			depository.Handle(args[2].([32]byte)),
			args[3].([]byte),
		)
	case methodGrantDecryptPermission:
		receipt, err = f.chain.GrantDecryptPermission(
			sender,
			args[0].(*big.Int).Uint64(),
			args[1].(common.Address),
		)
	default:
		return fmt.Errorf("%s is not a write", method)
	}
	if err != nil {
		return toDataError(err)
	}
	f.sent = append(f.sent, tx)

	logs := make([]*types.Log, len(receipt.Events))
	for i, e := range receipt.Events {
		if logs[i], err = packLog(f.chain.Address(), e); err != nil {
			return err
		}
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(receipt.BlockNumber),
		Logs:        logs,
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if f.polls[txHash] < f.notFoundPolls {
		f.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, args, err := decodeCall(msg.Data)
	if err != nil {
		return nil, err
	}
	var out interface{}
	switch method {
	case methodGetOwnedDatabases:
		var ids []*big.Int
		for _, id := range f.chain.OwnedDatabases(args[0].(common.Address)) {
			ids = append(ids, new(big.Int).SetUint64(id))
		}
		out = ids
	case methodGetDatabase:
		record, err := f.chain.Database(args[0].(*big.Int).Uint64())
		if err != nil {
			return nil, toDataError(err)
		}
		out = databaseInfo{
			Name:                     record.Name,
			Owner:                    record.Owner,
			CreatedAt:                uint64(record.CreatedAt.Unix()),
			EncryptedDatabaseAddress: record.EncryptedIdentifier,
			AddressCommitment:        record.Commitment,
			EncryptedValueCount:      new(big.Int).SetUint64(record.ValueCount),
		}
	case methodGetDatabaseDecryptors:
		decryptors, err := f.chain.Decryptors(args[0].(*big.Int).Uint64())
		if err != nil {
			return nil, toDataError(err)
		}
		out = decryptors
	case methodGetDatabaseValues:
		values, err := f.chain.Values(args[0].(*big.Int).Uint64())
		if err != nil {
			return nil, toDataError(err)
		}
		raw := make([][32]byte, len(values))
		for i, v := range values {
			raw[i] = v
		}
		out = raw
	case methodTotalDatabases:
		out = new(big.Int).SetUint64(f.chain.Total())
	default:
		return nil, fmt.Errorf("%s is not a read", method)
	}
	return registryABI.Methods[method].Outputs.Pack(out)
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lock.Lock()
	f.queries = append(f.queries, q)
	f.lock.Unlock()

	var logs []types.Log
	for _, e := range f.chain.Events(q.FromBlock.Uint64(), q.ToBlock.Uint64()) {
		l, err := packLog(f.chain.Address(), e)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, nil
}

func decodeCall(data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, errors.New("short call data")
	}
	method, err := registryABI.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, err
	}
	return method.Name, args, nil
}

// toDataError encodes a simulated revert the way a node returns it.
func toDataError(err error) error {
	var revert *ledger.RevertError
	if !errors.As(err, &revert) {
		return err
	}
	var (
		data []byte
		perr error
	)
	if revert.Name != "" {
		data, perr = packRevert(revert.Name, revert.Args...)
	} else {
		data, perr = packErrorString(revert.Err.Error())
	}
	if perr != nil {
		return perr
	}
	return &dataError{data: hexutil.Encode(data)}
}

func packErrorString(reason string) ([]byte, error) {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	encoded, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		return nil, err
	}
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], encoded...), nil
}

// packRevert is the inverse of unpackRevert for registry custom errors.
func packRevert(name string, args ...interface{}) ([]byte, error) {
	abiErr, ok := registryABI.Errors[name]
	if !ok {
		return nil, fmt.Errorf("unknown registry error %q", name)
	}
	encoded, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, abiErr.ID[:4]...), encoded...), nil
}

// packLog encodes an event as the registry emits it.
func packLog(address common.Address, event ledger.Event) (*types.Log, error) {
	abiEvent, ok := registryABI.Events[event.Name()]
	if !ok {
		return nil, errUnknownEvent
	}
	var (
		account common.Address
		data    []interface{}
	)
	switch e := event.(type) {
	case *ledger.DatabaseCreated:
		account = e.Owner
		data = []interface{}{e.DBName, [32]byte(e.Commitment)}
	case *ledger.DecryptorGranted:
		account = e.Account
	case *ledger.EncryptedValueStored:
		account = e.Owner
		data = []interface{}{new(big.Int).SetUint64(e.ValueIndex)}
	}
	encoded, err := abiEvent.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, err
	}
	meta := event.Meta()
	return &types.Log{
		Address: address,
		Topics: []common.Hash{
			abiEvent.ID,
			common.BigToHash(new(big.Int).SetUint64(event.DatabaseID())),
			common.BytesToHash(account.Bytes()),
		},
		Data:        encoded,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash,
		Index:       meta.LogIndex,
	}, nil
}
