// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/crypto/fhe"
	"github.com/luxfi/depository/crypto/fhe/coprocessor"
	"github.com/luxfi/depository/ledger/simulated"
	"github.com/luxfi/depository/relayer"
	"github.com/luxfi/depository/vault"
	"github.com/luxfi/depository/vms/evm/signer"
)

const demoValue = 1234

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the depository flow against an in-process chain and relayer",
	Long: `Run create, store, grant and decrypt end to end against a simulated
registry and a local relayer served over HTTP. Nothing leaves the process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDemo(cmd.Context(), logger, cmd.OutOrStdout(), cfg.ChainID)
	},
}

// demoEnv is a coprocessor behind a loopback relayer plus a simulated registry.
type demoEnv struct {
	logger *zap.Logger
	chain  *simulated.Chain
	fhe    *fhe.Client
}

func (e *demoEnv) account() (*vault.Client, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	s := signer.NewTxSignerFromKey(key)
	return vault.New(
		e.logger,
		vault.Config{CacheTTL: time.Minute},
		e.chain.Session(s.Address()),
		e.fhe,
		s,
		nil,
	)
}

func runDemo(ctx context.Context, logger *zap.Logger, w io.Writer, chainID uint64) error {
	coproc, err := coprocessor.New(logger, coprocessor.Config{ChainID: chainID})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:           relayer.NewHandler(logger, relayer.NewRelayerMetrics(prometheus.NewRegistry()), coproc, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	client, err := relayer.NewClient(logger, "http://"+listener.Addr().String(), nil)
	if err == nil {
		env := &demoEnv{
			logger: logger,
			chain: simulated.NewChain(logger, simulated.Config{
				ACL:      coproc,
				Verifier: coproc,
			}),
			fhe: fhe.NewClient(logger, client),
		}
		err = env.run(gctx, w)
	}
	close(done)
	return errors.Join(err, g.Wait())
}

func (e *demoEnv) run(ctx context.Context, w io.Writer) error {
	owner, err := e.account()
	if err != nil {
		return err
	}
	bob, err := e.account()
	if err != nil {
		return err
	}
	carol, err := e.account()
	if err != nil {
		return err
	}

	db, err := owner.CreateDatabase(ctx, "My DB")
	if err != nil {
		return err
	}
	id := db.Record.ID
	fmt.Fprintf(w, "created database %d %q owned by %s\n", id, db.Record.Name, db.Record.Owner.Hex())
	fmt.Fprintf(w, "  identifier %s\n  commitment %s\n", db.Identifier.Hex(), db.Record.Commitment.Hex())

	if _, err := owner.StoreValue(ctx, id, demoValue); err != nil {
		return err
	}
	values, err := owner.DecryptValues(ctx, id)
	if err != nil {
		return err
	}
	if len(values) != 1 || values[0].Plaintext != demoValue {
		return fmt.Errorf("owner decrypted %v, expected [%d]", values, demoValue)
	}
	fmt.Fprintf(w, "stored %d as %s, owner decrypts %d\n", demoValue, values[0].Handle.Short(), values[0].Plaintext)

	if _, err := owner.GrantAccess(ctx, id, bob.Account()); err != nil {
		return err
	}
	identifier, err := bob.UnlockDatabase(ctx, id)
	if err != nil {
		return err
	}
	if identifier != db.Identifier {
		return fmt.Errorf("granted account decrypted identifier %s, expected %s", identifier.Hex(), db.Identifier.Hex())
	}
	values, err = bob.DecryptValues(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "granted %s, it decrypts %d\n", bob.Account().Hex(), values[0].Plaintext)

	if _, err := carol.DecryptValues(ctx, id); !errors.Is(err, fhe.ErrNotAllowed) {
		return fmt.Errorf("unauthorized account was not rejected: %v", err)
	}
	fmt.Fprintf(w, "unauthorized %s rejected\n", carol.Account().Hex())

	// An all-zero commitment is rejected before any ciphertext is stored.
	raw := e.chain.Session(owner.Account())
	_, err = raw.StoreEncryptedValue(ctx, id, common.Hash{}, values[0].Handle, []byte{0})
	if !errors.Is(err, depository.ErrInvalidCommitment) {
		return fmt.Errorf("zero commitment was not rejected: %v", err)
	}
	stored, err := owner.Values(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "zero commitment rejected, %d value stored\n", len(stored))
	return nil
}
