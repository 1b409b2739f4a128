// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/depository/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// Loaded by the root command before any subcommand runs.
var (
	cfg    config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "depository",
	Short: "Shadow Depository - encrypted database registry client",
	Long: `Shadow Depository registers encrypted databases on an EVM registry contract.

Each database is bound to a secret identifier that is stored encrypted under the
FHE network key. Values are appended as FHE ciphertexts and can be read back by
the owner and by any account the owner grants decrypt access to.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		v, err := config.BuildViper(cmd.Flags())
		if err != nil {
			return err
		}
		cfg, err = config.NewConfig(v)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(generateKeyCmd)
	rootCmd.AddCommand(createDatabaseCmd)
	rootCmd.AddCommand(storeValueCmd)
	rootCmd.AddCommand(listDatabasesCmd)
	rootCmd.AddCommand(getDatabaseCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(decryptKeyCmd)
	rootCmd.AddCommand(decryptValuesCmd)
	rootCmd.AddCommand(totalCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(serveRelayerCmd)
}

// newLogger writes JSON logs to stderr so stdout stays machine readable.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
