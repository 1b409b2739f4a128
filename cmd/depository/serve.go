// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/depository/config"
	"github.com/luxfi/depository/crypto/fhe/coprocessor"
	"github.com/luxfi/depository/metrics"
	"github.com/luxfi/depository/relayer"
	"github.com/luxfi/depository/utils"
)

const (
	relayerMetricsPrefix = "relayer"
	shutdownTimeout      = 5 * time.Second
)

var serveRelayerCmd = &cobra.Command{
	Use:   "serve-relayer",
	Short: "Serve the relayer API backed by a local coprocessor",
	Long: `Serve the relayer HTTP API backed by an in-process coprocessor for local
development. Keys that are not configured are generated at startup and are lost
when the process exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serveRelayer(cmd.Context(), logger, &cfg)
	},
}

func serveRelayer(ctx context.Context, logger *zap.Logger, cfg *config.Config) error {
	networkKey, err := loadKey(cfg.NetworkPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", config.NetworkPrivateKeyKey, err)
	}
	signerKey, err := loadKey(cfg.SignerPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", config.SignerPrivateKeyKey, err)
	}
	coproc, err := coprocessor.New(logger, coprocessor.Config{
		ChainID:            cfg.ChainID,
		DecryptionContract: cfg.DecryptionVerifier(),
		NetworkKey:         networkKey,
		SignerKey:          signerKey,
	})
	if err != nil {
		return err
	}

	registerers, metricsServer, err := metrics.StartMetricsServer(logger, cfg.MetricsPort, []string{relayerMetricsPrefix})
	if err != nil {
		logger.Error("Failed to start metrics server", zap.Error(err))
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           relayer.NewHandler(logger, relayer.NewRelayerMetrics(registerers[relayerMetricsPrefix]), coproc, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errGroup, errGroupCtx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		logger.Info(
			"Starting relayer API server",
			zap.Uint16("port", cfg.APIPort),
			zap.Uint64("chainID", cfg.ChainID),
			zap.Stringer("signer", coproc.Signer()),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relayer API server failed: %w", err)
		}
		return nil
	})
	errGroup.Go(func() error {
		<-errGroupCtx.Done()
		logger.Info("Shutting down relayer API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	err = errGroup.Wait()
	logger.Info("Relayer exited", zap.Error(err))
	return err
}

// loadKey parses a hex private key. An empty key yields nil.
func loadKey(hex string) (*ecdsa.PrivateKey, error) {
	if hex == "" {
		return nil, nil
	}
	return crypto.HexToECDSA(utils.SanitizeHexString(hex))
}
