// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"

	"github.com/luxfi/depository/config"
	"github.com/luxfi/depository/crypto/fhe"
	"github.com/luxfi/depository/relayer"
	"github.com/luxfi/depository/vault"
	"github.com/luxfi/depository/vms/evm"
	"github.com/luxfi/depository/vms/evm/signer"
)

// app is the depository stack for one account against a deployed registry.
type app struct {
	registry *evm.RegistryClient
	vault    *vault.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireRegistry(); err != nil {
		return nil, err
	}
	txSigner, err := signer.NewTxSigner(cfg.AccountPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load account key: %w", err)
	}
	ethClient, err := evm.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	registry, err := evm.NewRegistryClient(ctx, logger, ethClient, txSigner, cfg)
	if err != nil {
		return nil, err
	}
	relayerClient, err := relayer.NewClient(logger, cfg.RelayerURL, nil)
	if err != nil {
		return nil, err
	}
	v, err := vault.New(
		logger,
		vault.Config{
			DecryptDurationDays: cfg.DecryptDurationDays,
			CacheTTL:            cfg.CacheTTL(),
		},
		registry,
		fhe.NewClient(logger, relayerClient),
		txSigner,
		// Nothing serves metrics for a one-shot command.
		nil,
	)
	if err != nil {
		return nil, err
	}
	return &app{registry: registry, vault: v}, nil
}
