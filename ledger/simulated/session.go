// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package simulated

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/ledger"
)

var _ ledger.Registry = (*Session)(nil)

// Session is a ledger.Registry sending from a fixed account. Writes are
// validated client-side before they reach the chain.
type Session struct {
	chain *Chain
	from  common.Address
}

type mined struct {
	receipt *ledger.Receipt
}

func (m mined) Hash() common.Hash {
	return m.receipt.TxHash
}

func (m mined) Wait(ctx context.Context) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.receipt, nil
}

func result(receipt *ledger.Receipt, err error) (ledger.Pending, error) {
	if err != nil {
		return nil, err
	}
	return mined{receipt: receipt}, nil
}

func (s *Session) Address() common.Address {
	return s.chain.address
}

func (s *Session) From() common.Address {
	return s.from
}

func (s *Session) CreateDatabase(
	ctx context.Context,
	name string,
	commitment common.Hash,
	identifier depository.Handle,
	proof []byte,
) (ledger.Pending, error) {
	if err := ledger.ValidateCreate(name, commitment, identifier, proof); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result(s.chain.CreateDatabase(s.from, name, commitment, identifier, proof))
}

func (s *Session) StoreEncryptedValue(
	ctx context.Context,
	id uint64,
	commitment common.Hash,
	value depository.Handle,
	proof []byte,
) (ledger.Pending, error) {
	if err := ledger.ValidateStore(id, commitment, value, proof); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result(s.chain.StoreEncryptedValue(s.from, id, commitment, value, proof))
}

func (s *Session) GrantDecryptPermission(ctx context.Context, id uint64, account common.Address) (ledger.Pending, error) {
	if err := ledger.ValidateGrant(id, account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result(s.chain.GrantDecryptPermission(s.from, id, account))
}

func (s *Session) GetOwnedDatabases(ctx context.Context, owner common.Address) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.OwnedDatabases(owner), nil
}

func (s *Session) GetDatabase(ctx context.Context, id uint64) (*depository.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.Database(id)
}

func (s *Session) GetDatabaseDecryptors(ctx context.Context, id uint64) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.Decryptors(id)
}

func (s *Session) GetDatabaseValues(ctx context.Context, id uint64) ([]depository.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.Values(id)
}

func (s *Session) TotalDatabases(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.chain.Total(), nil
}

// FetchEvents returns every event mined at or after fromBlock.
func (s *Session) FetchEvents(ctx context.Context, fromBlock uint64) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.chain.Events(fromBlock, s.chain.BlockNumber()), nil
}
