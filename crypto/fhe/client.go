// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/crypto/eip712"
)

var (
	_ Encryptor = (*Client)(nil)
	_ Decryptor = (*Client)(nil)
)

// Client is the user-side FHE SDK. It encrypts inputs to the relayer's
// network key and opens re-encrypted shares with ephemeral keypairs.
type Client struct {
	logger  *zap.Logger
	relayer Relayer
	rand    io.Reader

	lock      sync.Mutex
	key       *NetworkKey
	networkPK *ecies.PublicKey
}

func NewClient(logger *zap.Logger, relayer Relayer) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:  logger,
		relayer: relayer,
		rand:    rand.Reader,
	}
}

// NetworkKey returns the relayer's key material. A successful fetch is kept
// for the lifetime of the client; failures are not cached.
func (c *Client) NetworkKey(ctx context.Context) (*NetworkKey, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.key != nil {
		return c.key, nil
	}
	key, err := c.relayer.NetworkKey(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch network key", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch network key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed network key: %v", ErrRelayer, err)
	}
	c.key = key
	c.networkPK = ecies.ImportECDSAPublic(pub)
	return key, nil
}

// Domain returns the EIP-712 domain user decryptions are signed under.
func (c *Client) Domain(ctx context.Context) (eip712.Domain, error) {
	key, err := c.NetworkKey(ctx)
	if err != nil {
		return eip712.Domain{}, err
	}
	return key.Domain, nil
}

// CreateEncryptedInput starts an input bound to contract and user. All added
// values share one input proof.
func (c *Client) CreateEncryptedInput(contract, user common.Address) *InputBuilder {
	return &InputBuilder{
		client:   c,
		contract: contract,
		user:     user,
	}
}

func (c *Client) EncryptAddress(
	ctx context.Context,
	contract, submitter, value common.Address,
) (*EncryptedInput, error) {
	return c.CreateEncryptedInput(contract, submitter).AddAddress(value).Encrypt(ctx)
}

func (c *Client) EncryptUint32(
	ctx context.Context,
	contract, submitter common.Address,
	value uint32,
) (*EncryptedInput, error) {
	return c.CreateEncryptedInput(contract, submitter).Add32(value).Encrypt(ctx)
}

// GenerateKeypair returns a fresh ephemeral keypair for one user decryption.
func (c *Client) GenerateKeypair() (*Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{
		PublicKey:  crypto.FromECDSAPub(&key.PublicKey),
		PrivateKey: crypto.FromECDSA(key),
	}, nil
}

// UserDecrypt submits a signed request and opens the returned shares.
func (c *Client) UserDecrypt(ctx context.Context, req *DecryptRequest) (Plaintexts, error) {
	if len(req.Handles) == 0 {
		return Plaintexts{}, nil
	}
	if req.Keypair == nil || req.Authorization == nil {
		return nil, errors.New("decrypt request is missing keypair or authorization")
	}
	priv, err := crypto.ToECDSA(req.Keypair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid keypair: %w", err)
	}
	eciesKey := ecies.ImportECDSA(priv)

	pairs := make([]HandleContractPair, len(req.Handles))
	wanted := make(map[depository.Handle]struct{}, len(req.Handles))
	for i, h := range req.Handles {
		pairs[i] = HandleContractPair{Handle: h, ContractAddress: req.Contract}
		wanted[h] = struct{}{}
	}
	auth := req.Authorization
	resp, err := c.relayer.UserDecrypt(ctx, &UserDecryptRequest{
		HandleContractPairs: pairs,
		ContractAddresses:   auth.ContractAddresses,
		UserAddress:         req.User,
		PublicKey:           auth.PublicKey,
		Signature:           req.Signature,
		StartTimestamp:      auth.StartTimestamp,
		DurationDays:        auth.DurationDays,
		ExtraData:           auth.ExtraData,
	})
	if err != nil {
		c.logger.Warn(
			"User decryption failed",
			zap.Stringer("user", req.User),
			zap.Int("handles", len(req.Handles)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("user decryption failed: %w", err)
	}

	plaintexts := make(Plaintexts, len(resp.Shares))
	for _, share := range resp.Shares {
		if _, ok := wanted[share.Handle]; !ok {
			c.logger.Debug("Ignoring share for unrequested handle", zap.Stringer("handle", share.Handle))
			continue
		}
		opened, err := eciesKey.Decrypt(share.Payload, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: share for %s: %v", ErrInvalidCiphertext, share.Handle, err)
		}
		_, value, err := DecodePlaintext(opened)
		if err != nil {
			return nil, fmt.Errorf("share for %s: %w", share.Handle, err)
		}
		plaintexts[share.Handle] = value
	}
	return plaintexts, nil
}

type typedValue struct {
	typ   Type
	value *uint256.Int
}

// InputBuilder accumulates plaintexts for a single encrypted input.
type InputBuilder struct {
	client   *Client
	contract common.Address
	user     common.Address
	values   []typedValue
}

func (b *InputBuilder) AddAddress(a common.Address) *InputBuilder {
	b.values = append(b.values, typedValue{typ: TypeAddress, value: AddressValue(a)})
	return b
}

func (b *InputBuilder) Add32(v uint32) *InputBuilder {
	b.values = append(b.values, typedValue{typ: TypeUint32, value: uint256.NewInt(uint64(v))})
	return b
}

// Encrypt encrypts every added value and asks the relayer for handles and
// an input proof.
func (b *InputBuilder) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if len(b.values) == 0 {
		return nil, errors.New("encrypted input has no values")
	}
	if len(b.values) > 255 {
		return nil, fmt.Errorf("encrypted input holds at most 255 values, got %d", len(b.values))
	}
	if _, err := b.client.NetworkKey(ctx); err != nil {
		return nil, err
	}

	ciphertexts := make([]hexutil.Bytes, len(b.values))
	for i, tv := range b.values {
		plaintext, err := EncodePlaintext(tv.typ, tv.value)
		if err != nil {
			return nil, err
		}
		ct, err := ecies.Encrypt(b.client.rand, b.client.networkPK, plaintext, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt input %d: %w", i, err)
		}
		ciphertexts[i] = ct
	}

	resp, err := b.client.relayer.InputProof(ctx, &InputProofRequest{
		ContractAddress: b.contract,
		UserAddress:     b.user,
		Ciphertexts:     ciphertexts,
	})
	if err != nil {
		b.client.logger.Warn(
			"Input proof request failed",
			zap.Stringer("contract", b.contract),
			zap.Stringer("user", b.user),
			zap.Error(err),
		)
		return nil, fmt.Errorf("input proof request failed: %w", err)
	}
	if len(resp.Handles) != len(b.values) {
		return nil, fmt.Errorf("%w: expected %d handles, got %d", ErrRelayer, len(b.values), len(resp.Handles))
	}
	if len(resp.InputProof) == 0 {
		return nil, fmt.Errorf("%w: empty input proof", ErrRelayer)
	}
	for i, h := range resp.Handles {
		if got := HandleType(h); got != b.values[i].typ {
			return nil, fmt.Errorf("%w: handle %d is %s, expected %s", ErrTypeMismatch, i, got, b.values[i].typ)
		}
	}
	return &EncryptedInput{
		Handles:    resp.Handles,
		InputProof: resp.InputProof,
	}, nil
}
