// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs. Flag defaults are left
// empty so that config file values are not shadowed; defaults are applied by
// SetDefaultConfigValues.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON or YAML config file")
	fs.String(LogLevelKey, "", "Log level (debug, info, warn, error)")
	fs.String(RPCURLKey, "", "JSON-RPC endpoint of the chain hosting the registry")
	fs.String(RegistryAddressKey, "", "Address of the registry contract")
	fs.String(AccountPrivateKeyKey, "", "Hex private key of the sending account")
	fs.String(RelayerURLKey, "", "Base URL of the FHE relayer")
	fs.Uint64(DecryptDurationDaysKey, 0, "Validity of a user decryption authorization in days")
	fs.Uint64(MaxBaseFeeKey, 0, "Max base fee in wei, 0 for 3x the current base fee")
	fs.Uint64(MaxPriorityFeePerGasKey, 0, "Max priority fee per gas in wei")
	fs.Uint64(GasLimitKey, 0, "Gas limit for writes, 0 to estimate")
	fs.Uint64(TxInclusionTimeoutSecondsKey, 0, "How long to wait for a transaction receipt")
	fs.Uint64(CacheTTLSecondsKey, 0, "How long record reads are cached")
	fs.Uint16(APIPortKey, 0, "Port the relayer API listens on")
	fs.Uint16(MetricsPortKey, 0, "Port Prometheus metrics are served on")
	fs.Uint64(ChainIDKey, 0, "Chain id the relayer binds handles to")
	fs.String(DecryptionContractKey, "", "EIP-712 verifying contract for user decryptions")
	fs.String(NetworkPrivateKeyKey, "", "Hex private key of the relayer network key")
	fs.String(SignerPrivateKeyKey, "", "Hex private key the relayer signs input proofs with")
}

// BuildViper builds the viper instance. Changed flags, DEPOSITORY_ prefixed
// environment variables and an optional config file are consulted, in that
// order.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := bindChangedFlags(v, fs); err != nil {
		return nil, err
	}

	filename := v.GetString(ConfigFileKey)
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(os.ExpandEnv(filename))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return v, nil
}

// bindChangedFlags binds only flags set on the command line, so unset flags
// never override the environment or the config file.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if f.Changed {
			err = v.BindPFlag(f.Name, f)
		} else {
			err = v.BindEnv(f.Name)
		}
	})
	return err
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(DecryptDurationDaysKey, defaultDecryptDurationDays)
	v.SetDefault(MaxPriorityFeePerGasKey, defaultMaxPriorityFeePerGas)
	v.SetDefault(TxInclusionTimeoutSecondsKey, defaultTxInclusionTimeoutSeconds)
	v.SetDefault(CacheTTLSecondsKey, defaultCacheTTLSeconds)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(MetricsPortKey, defaultMetricsPort)
	v.SetDefault(ChainIDKey, defaultChainID)
}

// BuildConfig constructs the depository config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
