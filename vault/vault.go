// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault binds encrypted databases to a single account. It creates
// databases under a fresh identifier, stores encrypted values, shares decrypt
// rights and decrypts identifiers and values on the account's behalf.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/math/set"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/cache"
	"github.com/luxfi/depository/crypto/eip712"
	"github.com/luxfi/depository/crypto/fhe"
	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/vms/evm/signer"
)

const (
	opCreate        = "create_database"
	opStore         = "store_value"
	opGrant         = "grant_access"
	opUnlock        = "unlock_database"
	opAdopt         = "adopt_identifier"
	opDecryptValues = "decrypt_values"
	opList          = "list_databases"
	opGet           = "get_database"
	opDecryptors    = "get_decryptors"
	opValues        = "get_values"
	opTotal         = "total_databases"

	// Bound on concurrent record reads while listing.
	listConcurrency = 8
)

var errAccountMismatch = errors.New("typed data signer and registry sender differ")

// FHE is what the vault needs from the encryption service.
type FHE interface {
	fhe.Encryptor
	fhe.Decryptor
	// Domain is the EIP-712 domain user decryptions are signed under.
	Domain(ctx context.Context) (eip712.Domain, error)
}

var _ FHE = (*fhe.Client)(nil)

type Config struct {
	// DecryptDurationDays is the validity of each decrypt authorization.
	DecryptDurationDays uint64
	// CacheTTL bounds how long record reads are served from memory.
	CacheTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Database is a newly created database with its plaintext identifier.
type Database struct {
	Record     *depository.Record
	Identifier common.Address
	TxHash     common.Hash
}

// Value is a decrypted stored value.
type Value struct {
	Index     uint64
	Handle    depository.Handle
	Plaintext uint32
}

// Client runs user actions for one account. Writes are submitted and then
// awaited; a second invocation of the same action while one is in flight
// returns ErrBusy.
type Client struct {
	logger   *zap.Logger
	registry ledger.Registry
	fhe      FHE
	account  signer.TypedDataSigner
	metrics  *VaultMetrics
	duration uint64
	now      func() time.Time

	records *cache.TTLCache[uint64, *depository.Record]

	lock     sync.Mutex
	busy     set.Set[string]
	sessions map[uint64]*session
}

func New(
	logger *zap.Logger,
	cfg Config,
	registry ledger.Registry,
	service FHE,
	account signer.TypedDataSigner,
	metrics *VaultMetrics,
) (*Client, error) {
	if account.Address() != registry.From() {
		return nil, fmt.Errorf("%w: %s, %s", errAccountMismatch, account.Address().Hex(), registry.From().Hex())
	}
	duration := cfg.DecryptDurationDays
	if duration == 0 {
		duration = eip712.DefaultDurationDays
	}
	if duration > eip712.MaxDurationDays {
		return nil, eip712.ErrInvalidDuration
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		logger: logger.With(
			zap.Stringer("account", account.Address()),
			zap.Stringer("registry", registry.Address()),
		),
		registry: registry,
		fhe:      service,
		account:  account,
		metrics:  metrics,
		duration: duration,
		now:      now,
		records:  cache.NewTTLCache[uint64, *depository.Record](cfg.CacheTTL),
		busy:     set.NewSet[string](4),
		sessions: make(map[uint64]*session),
	}, nil
}

// Account is the account every action runs as.
func (c *Client) Account() common.Address {
	return c.account.Address()
}

// Registry is the address of the registry contract.
func (c *Client) Registry() common.Address {
	return c.registry.Address()
}

// acquire marks key busy until the returned release is called.
func (c *Client) acquire(key string) (func(), error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.busy.Contains(key) {
		return nil, &depository.Error{Kind: depository.KindPrecondition, Op: key, Err: depository.ErrBusy}
	}
	c.busy.Add(key)
	return func() {
		c.lock.Lock()
		c.busy.Remove(key)
		c.lock.Unlock()
	}, nil
}

// observe records the outcome of op and classifies err. Anything without a
// kind that the ledger rejected is a precondition failure; the rest is a
// service failure.
func (c *Client) observe(op string, start time.Time, err error) error {
	if err == nil {
		if c.metrics != nil {
			c.metrics.OperationLatencyMS.WithLabelValues(op).Set(float64(time.Since(start).Milliseconds()))
		}
		return nil
	}
	kind := depository.KindOf(err)
	if kind == depository.KindUnknown {
		kind = depository.KindService
		if ledger.IsRevert(err) {
			kind = depository.KindPrecondition
		}
	}
	err = depository.NewError(kind, op, err)
	if c.metrics != nil {
		c.metrics.FailedOperationCount.WithLabelValues(op, kind.String()).Inc()
		if kind == depository.KindIntegrity {
			c.metrics.IntegrityFailureCount.Inc()
		}
	}
	return err
}

func (c *Client) begin(op string) time.Time {
	if c.metrics != nil {
		c.metrics.OperationCount.WithLabelValues(op).Inc()
	}
	return time.Now()
}

// CreateDatabase registers a database named name under a fresh identifier.
// The database is unlocked in this session.
func (c *Client) CreateDatabase(ctx context.Context, name string) (_ *Database, err error) {
	start := c.begin(opCreate)
	defer func() { err = c.observe(opCreate, start, err) }()

	name, err = depository.ParseName(name)
	if err != nil {
		return nil, err
	}
	release, err := c.acquire(busyCreate)
	if err != nil {
		return nil, err
	}
	defer release()

	identifier, err := depository.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	commitment := depository.CommitmentOf(identifier)
	input, err := c.fhe.EncryptAddress(ctx, c.registry.Address(), c.registry.From(), identifier)
	if err != nil {
		c.logger.Error("Failed to encrypt identifier", zap.Error(err))
		return nil, err
	}

	pending, err := c.registry.CreateDatabase(ctx, name, commitment, input.Handles[0], input.InputProof)
	if err != nil {
		return nil, err
	}
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	created, err := receipt.Created()
	if err != nil {
		return nil, err
	}

	c.setSession(created.ID, &session{state: Unlocked, identifier: identifier})
	c.records.Invalidate(created.ID)
	record, err := c.Database(ctx, created.ID)
	if err != nil {
		// The database exists. Report it from the event so the identifier is
		// not lost.
		c.logger.Warn(
			"Failed to read back created database",
			zap.Uint64("databaseID", created.ID),
			zap.Stringer("txID", receipt.TxHash),
			zap.Error(err),
		)
		record = &depository.Record{
			ID:                  created.ID,
			Name:                created.DBName,
			Owner:               created.Owner,
			EncryptedIdentifier: input.Handles[0],
			Commitment:          created.Commitment,
		}
	}
	c.logger.Info(
		"Created database",
		zap.Uint64("databaseID", created.ID),
		zap.String("name", name),
		zap.Stringer("txID", receipt.TxHash),
	)
	return &Database{
		Record:     record,
		Identifier: identifier,
		TxHash:     receipt.TxHash,
	}, nil
}

// StoreValue encrypts value and appends it to database id. The database must
// be unlocked in this session; the commitment sent with the value is derived
// from the verified identifier.
func (c *Client) StoreValue(ctx context.Context, id uint64, value uint32) (_ *ledger.EncryptedValueStored, err error) {
	start := c.begin(opStore)
	defer func() { err = c.observe(opStore, start, err) }()

	release, err := c.acquire(busyStore(id))
	if err != nil {
		return nil, err
	}
	defer release()

	identifier, err := c.identifier(id)
	if err != nil {
		return nil, err
	}
	commitment := depository.CommitmentOf(identifier)
	c.records.Invalidate(id)
	record, err := c.Database(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := depository.VerifyCommitment(identifier, record.Commitment); err != nil {
		c.logger.Error(
			"Stored commitment changed since unlock",
			zap.Uint64("databaseID", id),
			zap.Error(err),
		)
		c.fail(id, err)
		return nil, err
	}

	input, err := c.fhe.EncryptUint32(ctx, c.registry.Address(), c.registry.From(), value)
	if err != nil {
		c.logger.Error("Failed to encrypt value", zap.Uint64("databaseID", id), zap.Error(err))
		return nil, err
	}
	pending, err := c.registry.StoreEncryptedValue(ctx, id, commitment, input.Handles[0], input.InputProof)
	if err != nil {
		return nil, err
	}
	receipt, err := pending.Wait(ctx)
	c.records.Invalidate(id)
	if err != nil {
		return nil, err
	}
	for _, e := range receipt.Events {
		if stored, ok := e.(*ledger.EncryptedValueStored); ok {
			c.logger.Info(
				"Stored encrypted value",
				zap.Uint64("databaseID", id),
				zap.Uint64("valueIndex", stored.ValueIndex),
				zap.Stringer("txID", receipt.TxHash),
			)
			return stored, nil
		}
	}
	return nil, fmt.Errorf("receipt %s has no %s event", receipt.TxHash.Hex(), ledger.EventEncryptedValueStored)
}

// GrantAccess lets account decrypt the identifier and values of database id.
func (c *Client) GrantAccess(ctx context.Context, id uint64, account common.Address) (_ *ledger.Receipt, err error) {
	start := c.begin(opGrant)
	defer func() { err = c.observe(opGrant, start, err) }()

	release, err := c.acquire(busyGrant(id))
	if err != nil {
		return nil, err
	}
	defer release()

	pending, err := c.registry.GrantDecryptPermission(ctx, id, account)
	if err != nil {
		return nil, err
	}
	receipt, err := pending.Wait(ctx)
	c.records.Invalidate(id)
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"Granted decrypt permission",
		zap.Uint64("databaseID", id),
		zap.Stringer("grantee", account),
		zap.Stringer("txID", receipt.TxHash),
	)
	return receipt, nil
}

// UnlockDatabase decrypts the identifier of database id and checks it
// against the stored commitment.
func (c *Client) UnlockDatabase(ctx context.Context, id uint64) (_ common.Address, err error) {
	start := c.begin(opUnlock)
	defer func() { err = c.observe(opUnlock, start, err) }()

	release, err := c.acquire(busyUnlock(id))
	if err != nil {
		return common.Address{}, err
	}
	defer release()

	record, err := c.Database(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	c.setSession(id, &session{state: Decrypting})

	plaintexts, err := c.decrypt(ctx, []depository.Handle{record.EncryptedIdentifier})
	if err != nil {
		c.fail(id, err)
		return common.Address{}, err
	}
	identifier, err := plaintexts.Address(record.EncryptedIdentifier)
	if err != nil {
		c.fail(id, err)
		return common.Address{}, err
	}
	if err := depository.VerifyCommitment(identifier, record.Commitment); err != nil {
		c.logger.Error(
			"Decrypted identifier does not match commitment",
			zap.Uint64("databaseID", id),
			zap.Error(err),
		)
		c.fail(id, err)
		return common.Address{}, err
	}

	c.setSession(id, &session{state: Unlocked, identifier: identifier})
	c.logger.Info("Unlocked database", zap.Uint64("databaseID", id))
	return identifier, nil
}

// Adopt unlocks database id with an identifier known out of band, after
// checking it against the stored commitment.
func (c *Client) Adopt(ctx context.Context, id uint64, identifier common.Address) (err error) {
	start := c.begin(opAdopt)
	defer func() { err = c.observe(opAdopt, start, err) }()

	if identifier == (common.Address{}) {
		return &depository.Error{Kind: depository.KindValidation, Err: depository.ErrZeroIdentifier}
	}
	record, err := c.Database(ctx, id)
	if err != nil {
		return err
	}
	if err := depository.VerifyCommitment(identifier, record.Commitment); err != nil {
		c.fail(id, err)
		return err
	}
	c.setSession(id, &session{state: Unlocked, identifier: identifier})
	return nil
}

// DecryptValues decrypts every value stored in database id, in order.
func (c *Client) DecryptValues(ctx context.Context, id uint64) (_ []Value, err error) {
	start := c.begin(opDecryptValues)
	defer func() { err = c.observe(opDecryptValues, start, err) }()

	release, err := c.acquire(busyDecryptValues(id))
	if err != nil {
		return nil, err
	}
	defer release()

	handles, err := c.registry.GetDatabaseValues(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, &depository.Error{Kind: depository.KindPrecondition, Err: depository.ErrNoValues}
	}
	plaintexts, err := c.decrypt(ctx, handles)
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(handles))
	for i, h := range handles {
		v, err := plaintexts.Uint32(h)
		if err != nil {
			return nil, err
		}
		values[i] = Value{Index: uint64(i), Handle: h, Plaintext: v}
	}
	return values, nil
}

// decrypt runs one user decryption of handles under a freshly signed
// authorization.
func (c *Client) decrypt(ctx context.Context, handles []depository.Handle) (fhe.Plaintexts, error) {
	domain, err := c.fhe.Domain(ctx)
	if err != nil {
		return nil, err
	}
	keypair, err := c.fhe.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	contract := c.registry.Address()
	auth, err := eip712.NewUserDecryptRequest(
		keypair.PublicKey,
		[]common.Address{contract},
		c.now(),
		c.duration,
	)
	if err != nil {
		return nil, &depository.Error{Kind: depository.KindValidation, Err: err}
	}
	signature, err := c.account.SignTypedData(auth.TypedData(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to sign decrypt authorization: %w", err)
	}
	plaintexts, err := c.fhe.UserDecrypt(ctx, &fhe.DecryptRequest{
		Handles:       handles,
		Contract:      contract,
		User:          c.account.Address(),
		Keypair:       keypair,
		Authorization: auth,
		Signature:     signature,
	})
	if err != nil {
		c.logger.Warn(
			"Failed to decrypt handles",
			zap.Int("handles", len(handles)),
			zap.Error(err),
		)
		return nil, err
	}
	return plaintexts, nil
}

// ListDatabases returns the databases owned by the account, in creation
// order.
func (c *Client) ListDatabases(ctx context.Context) (_ []*depository.Record, err error) {
	start := c.begin(opList)
	defer func() { err = c.observe(opList, start, err) }()

	ids, err := c.registry.GetOwnedDatabases(ctx, c.registry.From())
	if err != nil {
		return nil, err
	}
	records := make([]*depository.Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			record, err := c.record(gctx, id)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// Database returns record id, from the cache when fresh.
func (c *Client) Database(ctx context.Context, id uint64) (_ *depository.Record, err error) {
	start := c.begin(opGet)
	defer func() { err = c.observe(opGet, start, err) }()

	if id == 0 {
		return nil, &depository.Error{Kind: depository.KindValidation, Err: depository.ErrInvalidID}
	}
	return c.record(ctx, id)
}

func (c *Client) record(ctx context.Context, id uint64) (*depository.Record, error) {
	record, err := c.records.Get(ctx, id, c.registry.GetDatabase)
	if err != nil {
		return nil, err
	}
	clone := *record
	return &clone, nil
}

func (c *Client) Decryptors(ctx context.Context, id uint64) (_ []common.Address, err error) {
	start := c.begin(opDecryptors)
	defer func() { err = c.observe(opDecryptors, start, err) }()

	return c.registry.GetDatabaseDecryptors(ctx, id)
}

func (c *Client) Values(ctx context.Context, id uint64) (_ []depository.Handle, err error) {
	start := c.begin(opValues)
	defer func() { err = c.observe(opValues, start, err) }()

	return c.registry.GetDatabaseValues(ctx, id)
}

func (c *Client) Total(ctx context.Context) (_ uint64, err error) {
	start := c.begin(opTotal)
	defer func() { err = c.observe(opTotal, start, err) }()

	return c.registry.TotalDatabases(ctx)
}

// State returns the session state of database id.
func (c *Client) State(id uint64) State {
	c.lock.Lock()
	defer c.lock.Unlock()

	if s, ok := c.sessions[id]; ok {
		return s.state
	}
	return Locked
}

// LastError is the failure that put database id in the Failed state.
func (c *Client) LastError(id uint64) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if s, ok := c.sessions[id]; ok {
		return s.err
	}
	return nil
}

// Lock forgets the identifier of database id.
func (c *Client) Lock(id uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.sessions, id)
}

func (c *Client) identifier(id uint64) (common.Address, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	s, ok := c.sessions[id]
	if !ok || s.state != Unlocked {
		return common.Address{}, &depository.Error{Kind: depository.KindPrecondition, Err: depository.ErrLocked}
	}
	return s.identifier, nil
}

func (c *Client) setSession(id uint64, s *session) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.sessions[id] = s
}

func (c *Client) fail(id uint64, err error) {
	c.setSession(id, &session{state: Failed, err: err})
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
