// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package simulated is an in-memory registry contract. Every write is mined
// into its own block as soon as it is submitted.
package simulated

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/luxfi/math/set"
	"go.uber.org/zap"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/crypto/fhe"
	"github.com/luxfi/depository/ledger"
)

// DefaultAddress is the registry address used when none is configured.
var DefaultAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type Config struct {
	Address common.Address
	// ACL receives the contract's permission grants. Nil disables them.
	ACL fhe.ACL
	// Verifier checks input proofs. Nil makes encrypted writes revert with
	// ZamaProtocolUnsupported.
	Verifier fhe.InputVerifier
	// Now defaults to time.Now. It sets record creation times.
	Now func() time.Time
}

type database struct {
	record     depository.Record
	decryptors []common.Address
	authorized set.Set[common.Address]
	values     []depository.Handle
}

// Chain holds the contract state shared by every session.
type Chain struct {
	logger   *zap.Logger
	address  common.Address
	acl      fhe.ACL
	verifier fhe.InputVerifier
	now      func() time.Time

	lock      sync.RWMutex
	databases []*database
	owned     map[common.Address][]uint64
	block     uint64
	nonces    map[common.Address]uint64
	events    []ledger.Event
}

func NewChain(logger *zap.Logger, cfg Config) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	address := cfg.Address
	if address == (common.Address{}) {
		address = DefaultAddress
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Chain{
		logger:   logger,
		address:  address,
		acl:      cfg.ACL,
		verifier: cfg.Verifier,
		now:      now,
		owned:    make(map[common.Address][]uint64),
		nonces:   make(map[common.Address]uint64),
	}
}

func (c *Chain) Address() common.Address {
	return c.address
}

// Session returns a registry client that sends writes from sender.
func (c *Chain) Session(sender common.Address) *Session {
	return &Session{chain: c, from: sender}
}

// BlockNumber is the number of the last mined block.
func (c *Chain) BlockNumber() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.block
}

// Events returns the events mined in blocks [from, to].
func (c *Chain) Events(from, to uint64) []ledger.Event {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var out []ledger.Event
	for _, e := range c.events {
		if n := e.Meta().BlockNumber; n >= from && n <= to {
			out = append(out, e)
		}
	}
	return out
}

// get must be called with the lock held.
func (c *Chain) get(id uint64) (*database, error) {
	if id == 0 || id > uint64(len(c.databases)) {
		return nil, ledger.NewRevertError(ledger.ErrorDatabaseNotFound, new(big.Int).SetUint64(id))
	}
	return c.databases[id-1], nil
}

func (c *Chain) getOwned(id uint64, sender common.Address) (*database, error) {
	db, err := c.get(id)
	if err != nil {
		return nil, err
	}
	if db.record.Owner != sender {
		return nil, ledger.NewRevertError(ledger.ErrorNotDatabaseOwner, new(big.Int).SetUint64(id), sender)
	}
	return db, nil
}

func (c *Chain) verifyInput(handle depository.Handle, proof []byte, sender common.Address) error {
	if c.verifier == nil {
		return ledger.NewRevertError(ledger.ErrorProtocolUnsupported)
	}
	if err := c.verifier.VerifyInput(handle, proof, c.address, sender); err != nil {
		return &ledger.RevertError{
			Err: fmt.Errorf("%w: %v", depository.ErrInvalidInputProof, err),
		}
	}
	return nil
}

func (c *Chain) allow(handle depository.Handle, accounts ...common.Address) {
	if c.acl == nil {
		return
	}
	for _, account := range accounts {
		if err := c.acl.Allow(handle, account); err != nil {
			c.logger.Error(
				"Failed to grant handle permission",
				zap.Stringer("handle", handle),
				zap.Stringer("account", account),
				zap.Error(err),
			)
		}
	}
}

// mine records events in a new block and returns the receipt. It must be
// called with the lock held.
func (c *Chain) mine(sender common.Address, events ...ledger.Event) *ledger.Receipt {
	c.block++
	nonce := c.nonces[sender]
	c.nonces[sender] = nonce + 1

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], nonce)
	binary.BigEndian.PutUint64(buf[8:], c.block)
	txHash := crypto.Keccak256Hash(sender.Bytes(), buf[:])

	for i, e := range events {
		meta := ledger.EventMeta{BlockNumber: c.block, TxHash: txHash, LogIndex: uint(i)}
		switch ev := e.(type) {
		case *ledger.DatabaseCreated:
			ev.EventMeta = meta
		case *ledger.DecryptorGranted:
			ev.EventMeta = meta
		case *ledger.EncryptedValueStored:
			ev.EventMeta = meta
		}
	}
	c.events = append(c.events, events...)
	return &ledger.Receipt{
		TxHash:      txHash,
		BlockNumber: c.block,
		Events:      events,
	}
}

// CreateDatabase applies createDatabase sent by sender.
func (c *Chain) CreateDatabase(
	sender common.Address,
	name string,
	commitment common.Hash,
	identifier depository.Handle,
	proof []byte,
) (*ledger.Receipt, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ledger.NewRevertError(ledger.ErrorEmptyName)
	}
	if commitment == (common.Hash{}) {
		return nil, ledger.NewRevertError(ledger.ErrorCommitmentRequired)
	}
	if err := c.verifyInput(identifier, proof, sender); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	id := uint64(len(c.databases)) + 1
	authorized := set.NewSet[common.Address](1)
	authorized.Add(sender)
	c.databases = append(c.databases, &database{
		record: depository.Record{
			ID:                  id,
			Name:                name,
			Owner:               sender,
			CreatedAt:           c.now().Truncate(time.Second),
			EncryptedIdentifier: identifier,
			Commitment:          commitment,
		},
		decryptors: []common.Address{sender},
		authorized: authorized,
	})
	c.owned[sender] = append(c.owned[sender], id)
	c.allow(identifier, c.address, sender)

	c.logger.Debug("Created database", zap.Uint64("databaseID", id), zap.Stringer("owner", sender))
	return c.mine(sender, &ledger.DatabaseCreated{
		ID:         id,
		Owner:      sender,
		DBName:     name,
		Commitment: commitment,
	}), nil
}

// StoreEncryptedValue applies storeEncryptedValue sent by sender.
func (c *Chain) StoreEncryptedValue(
	sender common.Address,
	id uint64,
	commitment common.Hash,
	value depository.Handle,
	proof []byte,
) (*ledger.Receipt, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	db, err := c.getOwned(id, sender)
	if err != nil {
		return nil, err
	}
	if commitment != db.record.Commitment {
		return nil, ledger.NewRevertError(ledger.ErrorInvalidCommitment)
	}
	if err := c.verifyInput(value, proof, sender); err != nil {
		return nil, err
	}

	index := uint64(len(db.values))
	db.values = append(db.values, value)
	db.record.ValueCount = uint64(len(db.values))
	c.allow(value, append([]common.Address{c.address}, db.decryptors...)...)

	return c.mine(sender, &ledger.EncryptedValueStored{
		ID:         id,
		Owner:      sender,
		ValueIndex: index,
	}), nil
}

// GrantDecryptPermission applies grantDecryptPermission sent by sender.
func (c *Chain) GrantDecryptPermission(sender common.Address, id uint64, account common.Address) (*ledger.Receipt, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	db, err := c.getOwned(id, sender)
	if err != nil {
		return nil, err
	}
	if account == (common.Address{}) {
		return nil, ledger.NewRevertError(ledger.ErrorZeroAddress)
	}
	if db.authorized.Contains(account) {
		return nil, ledger.NewRevertError(ledger.ErrorAddressAlreadyAuthorized, new(big.Int).SetUint64(id), account)
	}

	db.authorized.Add(account)
	db.decryptors = append(db.decryptors, account)
	c.allow(db.record.EncryptedIdentifier, account)
	for _, v := range db.values {
		c.allow(v, account)
	}

	return c.mine(sender, &ledger.DecryptorGranted{
		ID:      id,
		Account: account,
	}), nil
}

func (c *Chain) OwnedDatabases(owner common.Address) []uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return append([]uint64{}, c.owned[owner]...)
}

func (c *Chain) Database(id uint64) (*depository.Record, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	db, err := c.get(id)
	if err != nil {
		return nil, err
	}
	record := db.record
	return &record, nil
}

func (c *Chain) Decryptors(id uint64) ([]common.Address, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	db, err := c.get(id)
	if err != nil {
		return nil, err
	}
	return append([]common.Address{}, db.decryptors...), nil
}

func (c *Chain) Values(id uint64) ([]depository.Handle, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	db, err := c.get(id)
	if err != nil {
		return nil, err
	}
	return append([]depository.Handle{}, db.values...), nil
}

func (c *Chain) Total() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return uint64(len(c.databases))
}
