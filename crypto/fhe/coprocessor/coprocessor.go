// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package coprocessor is an in-process FHE relayer. It holds the network
// decryption key, signs input proofs, keeps the ACL the registry writes to
// and serves re-encrypted user decryptions.
package coprocessor

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/luxfi/math/set"
	"go.uber.org/zap"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/crypto/eip712"
	"github.com/luxfi/depository/crypto/fhe"
)

var (
	_ fhe.Relayer       = (*Coprocessor)(nil)
	_ fhe.ACL           = (*Coprocessor)(nil)
	_ fhe.InputVerifier = (*Coprocessor)(nil)
)

const (
	proofHeaderLen = 2
	signerCount    = 1
)

// Config holds the chain binding and key material. Missing keys are
// generated.
type Config struct {
	ChainID uint64
	// DecryptionContract is the EIP-712 verifying contract for user
	// decryption signatures.
	DecryptionContract common.Address
	NetworkKey         *ecdsa.PrivateKey
	SignerKey          *ecdsa.PrivateKey
	// Now defaults to time.Now.
	Now func() time.Time
}

type ciphertext struct {
	typ      fhe.Type
	payload  []byte
	contract common.Address
	user     common.Address
}

type Coprocessor struct {
	logger     *zap.Logger
	chainID    uint64
	domain     eip712.Domain
	networkKey *ecies.PrivateKey
	signerKey  *ecdsa.PrivateKey
	signer     common.Address
	now        func() time.Time
	rand       io.Reader

	lock        sync.RWMutex
	ciphertexts map[depository.Handle]ciphertext
	acl         map[depository.Handle]set.Set[common.Address]
	inputs      uint64
}

func New(logger *zap.Logger, cfg Config) (*Coprocessor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	networkKey := cfg.NetworkKey
	if networkKey == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate network key: %w", err)
		}
		networkKey = key
	}
	signerKey := cfg.SignerKey
	if signerKey == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signer key: %w", err)
		}
		signerKey = key
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coprocessor{
		logger:  logger,
		chainID: cfg.ChainID,
		domain: eip712.Domain{
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.DecryptionContract,
		},
		networkKey:  ecies.ImportECDSA(networkKey),
		signerKey:   signerKey,
		signer:      crypto.PubkeyToAddress(signerKey.PublicKey),
		now:         now,
		rand:        rand.Reader,
		ciphertexts: make(map[depository.Handle]ciphertext),
		acl:         make(map[depository.Handle]set.Set[common.Address]),
	}, nil
}

// Signer is the address input proofs are signed by.
func (c *Coprocessor) Signer() common.Address {
	return c.signer
}

func (c *Coprocessor) Domain() eip712.Domain {
	return c.domain
}

func (c *Coprocessor) NetworkKey(context.Context) (*fhe.NetworkKey, error) {
	return &fhe.NetworkKey{
		ChainID:   c.chainID,
		PublicKey: crypto.FromECDSAPub(c.networkKey.PublicKey.ExportECDSA()),
		Signer:    c.signer,
		Domain:    c.domain,
	}, nil
}

// InputProof registers the ciphertexts and returns their handles with a
// proof binding them to (contract, user).
func (c *Coprocessor) InputProof(ctx context.Context, req *fhe.InputProofRequest) (*fhe.InputProofResponse, error) {
	if len(req.Ciphertexts) == 0 {
		return nil, fmt.Errorf("%w: no ciphertexts", fhe.ErrInvalidCiphertext)
	}
	if len(req.Ciphertexts) > 255 {
		return nil, fmt.Errorf("%w: too many ciphertexts", fhe.ErrInvalidCiphertext)
	}

	types := make([]fhe.Type, len(req.Ciphertexts))
	for i, ct := range req.Ciphertexts {
		plaintext, err := c.networkKey.Decrypt(ct, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", fhe.ErrInvalidCiphertext, i, err)
		}
		t, _, err := fhe.DecodePlaintext(plaintext)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		types[i] = t
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.inputs++
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], c.inputs)

	handles := make([]depository.Handle, len(req.Ciphertexts))
	for i, ct := range req.Ciphertexts {
		digest := crypto.Keccak256Hash(
			ct,
			req.ContractAddress.Bytes(),
			req.UserAddress.Bytes(),
			seq[:],
		)
		h := fhe.NewHandle(digest, uint8(i), c.chainID, types[i])
		handles[i] = h
		c.ciphertexts[h] = ciphertext{
			typ:      types[i],
			payload:  append([]byte(nil), ct...),
			contract: req.ContractAddress,
			user:     req.UserAddress,
		}
	}

	proof, err := c.signProof(handles, req.ContractAddress, req.UserAddress)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(
		"Issued input proof",
		zap.Stringer("contract", req.ContractAddress),
		zap.Stringer("user", req.UserAddress),
		zap.Int("handles", len(handles)),
	)
	return &fhe.InputProofResponse{
		Handles:    handles,
		InputProof: proof,
	}, nil
}

// proofDigest is keccak256(handles || user || contract || chainID).
func (c *Coprocessor) proofDigest(handles []depository.Handle, contract, user common.Address) []byte {
	buf := make([]byte, 0, len(handles)*depository.HandleLen+2*common.AddressLength+32)
	for _, h := range handles {
		buf = append(buf, h[:]...)
	}
	buf = append(buf, user.Bytes()...)
	buf = append(buf, contract.Bytes()...)
	var chain [32]byte
	binary.BigEndian.PutUint64(chain[24:], c.chainID)
	buf = append(buf, chain[:]...)
	return crypto.Keccak256(buf)
}

func (c *Coprocessor) signProof(handles []depository.Handle, contract, user common.Address) ([]byte, error) {
	sig, err := crypto.Sign(c.proofDigest(handles, contract, user), c.signerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input proof: %w", err)
	}
	proof := make([]byte, 0, proofHeaderLen+len(handles)*depository.HandleLen+len(sig))
	proof = append(proof, byte(len(handles)), signerCount)
	for _, h := range handles {
		proof = append(proof, h[:]...)
	}
	return append(proof, sig...), nil
}

// VerifyInput checks that proof was issued for handle to (contract, user).
func (c *Coprocessor) VerifyInput(handle depository.Handle, proof []byte, contract, user common.Address) error {
	handles, sig, err := parseProof(proof)
	if err != nil {
		return err
	}
	found := false
	for _, h := range handles {
		if h == handle {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: handle %s not in proof", fhe.ErrInvalidProof, handle.Short())
	}
	pub, err := crypto.SigToPub(c.proofDigest(handles, contract, user), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", fhe.ErrInvalidProof, err)
	}
	if crypto.PubkeyToAddress(*pub) != c.signer {
		return fmt.Errorf("%w: not signed for this contract and user", fhe.ErrInvalidProof)
	}

	c.lock.RLock()
	_, ok := c.ciphertexts[handle]
	c.lock.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, handle.Short())
	}
	return nil
}

func parseProof(proof []byte) ([]depository.Handle, []byte, error) {
	if len(proof) < proofHeaderLen {
		return nil, nil, fmt.Errorf("%w: too short", fhe.ErrInvalidProof)
	}
	numHandles := int(proof[0])
	numSigners := int(proof[1])
	want := proofHeaderLen + numHandles*depository.HandleLen + numSigners*crypto.SignatureLength
	if numHandles == 0 || numSigners != signerCount || len(proof) != want {
		return nil, nil, fmt.Errorf("%w: malformed", fhe.ErrInvalidProof)
	}
	handles := make([]depository.Handle, numHandles)
	offset := proofHeaderLen
	for i := range handles {
		copy(handles[i][:], proof[offset:offset+depository.HandleLen])
		offset += depository.HandleLen
	}
	return handles, proof[offset:], nil
}

func (c *Coprocessor) Allow(handle depository.Handle, account common.Address) error {
	if handle.IsZero() {
		return depository.ErrInvalidHandle
	}
	if account == (common.Address{}) {
		return depository.ErrZeroAddress
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.ciphertexts[handle]; !ok {
		return fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, handle.Short())
	}
	allowed, ok := c.acl[handle]
	if !ok {
		allowed = set.NewSet[common.Address](2)
		c.acl[handle] = allowed
	}
	allowed.Add(account)
	return nil
}

func (c *Coprocessor) IsAllowed(handle depository.Handle, account common.Address) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.acl[handle].Contains(account)
}

// UserDecrypt re-encrypts the requested plaintexts to the signed public key.
// Every handle must be allowed for both the user and its contract.
func (c *Coprocessor) UserDecrypt(ctx context.Context, req *fhe.UserDecryptRequest) (*fhe.UserDecryptResponse, error) {
	if err := c.authorize(req); err != nil {
		c.logger.Info(
			"Rejected user decryption",
			zap.Stringer("user", req.UserAddress),
			zap.Error(err),
		)
		return nil, err
	}

	pub, err := crypto.UnmarshalPubkey(req.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", fhe.ErrUnauthorized, err)
	}
	target := ecies.ImportECDSAPublic(pub)

	c.lock.RLock()
	defer c.lock.RUnlock()

	shares := make([]fhe.Share, 0, len(req.HandleContractPairs))
	for _, pair := range req.HandleContractPairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ct, ok := c.ciphertexts[pair.Handle]
		if !ok {
			return nil, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, pair.Handle.Short())
		}
		allowed := c.acl[pair.Handle]
		if !allowed.Contains(req.UserAddress) || !allowed.Contains(pair.ContractAddress) {
			return nil, fmt.Errorf("%w: %s for %s", fhe.ErrNotAllowed, pair.Handle.Short(), req.UserAddress.Hex())
		}
		plaintext, err := c.networkKey.Decrypt(ct.payload, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: stored %s: %v", fhe.ErrInvalidCiphertext, pair.Handle.Short(), err)
		}
		payload, err := ecies.Encrypt(c.rand, target, plaintext, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encrypt %s: %w", pair.Handle.Short(), err)
		}
		shares = append(shares, fhe.Share{Handle: pair.Handle, Payload: payload})
	}
	return &fhe.UserDecryptResponse{Shares: shares}, nil
}

func (c *Coprocessor) authorize(req *fhe.UserDecryptRequest) error {
	if len(req.HandleContractPairs) == 0 {
		return fmt.Errorf("%w: no handles requested", fhe.ErrUnauthorized)
	}
	auth := req.Authorization()
	if err := auth.Validate(); err != nil {
		return fmt.Errorf("%w: %w", fhe.ErrUnauthorized, err)
	}
	if err := auth.CheckWindow(c.now()); err != nil {
		return fmt.Errorf("%w: %w", fhe.ErrUnauthorized, err)
	}
	for _, pair := range req.HandleContractPairs {
		if !auth.Lists(pair.ContractAddress) {
			return fmt.Errorf("%w: %w: %s", fhe.ErrUnauthorized, eip712.ErrContractNotListed, pair.ContractAddress.Hex())
		}
	}
	if err := auth.Verify(c.domain, req.Signature, req.UserAddress); err != nil {
		return fmt.Errorf("%w: %w", fhe.ErrUnauthorized, err)
	}
	return nil
}

// Type returns the encrypted type of a registered handle.
func (c *Coprocessor) Type(handle depository.Handle) (fhe.Type, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	ct, ok := c.ciphertexts[handle]
	if !ok {
		return 0, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, handle.Short())
	}
	return ct.typ, nil
}

// Len is the number of registered ciphertexts.
func (c *Coprocessor) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.ciphertexts)
}
