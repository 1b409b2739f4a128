// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/ledger"
)

// decodeRevert turns revert data carried by an RPC error into a
// ledger.RevertError. Errors without revert data are returned unchanged.
func decodeRevert(err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	data, ok := revertData(dataErr.ErrorData())
	if !ok {
		return err
	}
	return unpackRevert(data)
}

func revertData(v interface{}) ([]byte, bool) {
	switch data := v.(type) {
	case string:
		b, err := hexutil.Decode(data)
		return b, err == nil && len(b) >= 4
	case []byte:
		return data, len(data) >= 4
	case hexutil.Bytes:
		return data, len(data) >= 4
	default:
		return nil, false
	}
}

// unpackRevert decodes a registry custom error or a plain Error(string)
// revert.
func unpackRevert(data []byte) error {
	for name, abiErr := range registryABI.Errors {
		if !bytes.Equal(abiErr.ID[:4], data[:4]) {
			continue
		}
		args, err := abiErr.Inputs.Unpack(data[4:])
		if err != nil {
			return &ledger.RevertError{
				Name: name,
				Err:  fmt.Errorf("%w: malformed %s arguments: %v", depository.ErrTxReverted, name, err),
			}
		}
		return ledger.NewRevertError(name, args...)
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return &ledger.RevertError{Err: fmt.Errorf("%w: %s", depository.ErrTxReverted, reason)}
	}
	return &ledger.RevertError{Err: fmt.Errorf("%w: data %s", depository.ErrTxReverted, hexutil.Encode(data))}
}
