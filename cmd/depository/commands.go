// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/luxfi/depository"
	"github.com/luxfi/depository/config"
	"github.com/luxfi/depository/ledger"
	"github.com/luxfi/depository/vms/evm/signer"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the registry address and the configured account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.RegistryAddress == "" {
			return fmt.Errorf("%s is required", config.RegistryAddressKey)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registry %s\n", cfg.Registry().Hex())
		if cfg.AccountPrivateKey == "" {
			return nil
		}
		s, err := signer.NewTxSigner(cfg.AccountPrivateKey)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account  %s\n", s.Address().Hex())
		return nil
	},
}

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new account key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Address    string `json:"address"`
			PrivateKey string `json:"privateKey"`
		}{
			Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
			PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		})
	},
}

var createDatabaseCmd = &cobra.Command{
	Use:   "create-database <name>",
	Short: "Register a new encrypted database",
	Long: `Register a new encrypted database. A fresh identifier is generated,
encrypted under the network key and committed to on the registry.

The printed identifier is the database key. It can always be recovered with
decrypt-key by the owner and by granted accounts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		db, err := a.vault.CreateDatabase(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Record     *depository.Record `json:"record"`
			Identifier string             `json:"identifier"`
			TxHash     string             `json:"txHash"`
		}{
			Record:     db.Record,
			Identifier: db.Identifier.Hex(),
			TxHash:     db.TxHash.Hex(),
		})
	},
}

var storeValueCmd = &cobra.Command{
	Use:   "store-value <id> <value>",
	Short: "Encrypt and append a 32-bit value to a database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := depository.ParseDatabaseID(args[0])
		if err != nil {
			return err
		}
		value, err := depository.ParseValue(args[1])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		// Sessions do not outlive the process, so the key is unlocked first.
		if _, err := a.vault.UnlockDatabase(cmd.Context(), id); err != nil {
			return err
		}
		stored, err := a.vault.StoreValue(cmd.Context(), id, value)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stored)
	},
}

var listDatabasesCmd = &cobra.Command{
	Use:   "list-databases",
	Short: "List the databases owned by the configured account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		records, err := a.vault.ListDatabases(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var getDatabaseCmd = &cobra.Command{
	Use:   "get-database <id>",
	Short: "Print a database record with its decryptors and value handles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := depository.ParseDatabaseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		record, err := a.vault.Database(ctx, id)
		if err != nil {
			return err
		}
		decryptors, err := a.vault.Decryptors(ctx, id)
		if err != nil {
			return err
		}
		values, err := a.vault.Values(ctx, id)
		if err != nil {
			return err
		}
		accounts := make([]string, len(decryptors))
		for i, d := range decryptors {
			accounts[i] = d.Hex()
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Record     *depository.Record  `json:"record"`
			Decryptors []string            `json:"decryptors"`
			Values     []depository.Handle `json:"values"`
		}{
			Record:     record,
			Decryptors: accounts,
			Values:     values,
		})
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant <id> <account>",
	Short: "Grant an account decrypt access to a database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := depository.ParseDatabaseID(args[0])
		if err != nil {
			return err
		}
		account, err := depository.ParseAccount(args[1])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		receipt, err := a.vault.GrantAccess(cmd.Context(), id, account)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), receipt.TxHash.Hex())
		return nil
	},
}

var decryptKeyCmd = &cobra.Command{
	Use:   "decrypt-key <id>",
	Short: "Decrypt a database identifier and check it against its commitment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := depository.ParseDatabaseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		identifier, err := a.vault.UnlockDatabase(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), identifier.Hex())
		return nil
	},
}

var decryptValuesCmd = &cobra.Command{
	Use:   "decrypt-values <id>",
	Short: "Decrypt every value stored in a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := depository.ParseDatabaseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		values, err := a.vault.DecryptValues(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), values)
	},
}

var totalCmd = &cobra.Command{
	Use:   "total",
	Short: "Print the number of databases in the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		total, err := a.vault.Total(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), total)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [from-block]",
	Short: "Print registry events from a block to the chain head",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var from uint64
		if len(args) == 1 {
			var err error
			from, err = strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid from-block %q: %w", args[0], err)
			}
		}
		a, err := newApp(cmd.Context(), &cfg)
		if err != nil {
			return err
		}
		events, err := a.registry.FetchEvents(cmd.Context(), from)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), namedEvents(events))
	},
}

type namedEvent struct {
	Event string       `json:"event"`
	Data  ledger.Event `json:"data"`
}

func namedEvents(events []ledger.Event) []namedEvent {
	out := make([]namedEvent, len(events))
	for i, e := range events {
		out[i] = namedEvent{Event: e.Name(), Data: e}
	}
	return out
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
