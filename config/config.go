// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/depository/crypto/eip712"
	"github.com/luxfi/depository/utils"
)

const (
	defaultLogLevel                  = "info"
	defaultDecryptDurationDays       = eip712.DefaultDurationDays
	defaultMaxPriorityFeePerGas      = 2_500_000_000 // 2.5 gwei
	defaultTxInclusionTimeoutSeconds = 30
	defaultCacheTTLSeconds           = 10
	defaultAPIPort                   = 8080
	defaultMetricsPort               = 9090
	defaultChainID                   = 31337
)

var (
	errMissingRPCURL     = errors.New("rpc-url is required")
	errMissingRegistry   = errors.New("registry-address is required")
	errMissingAccountKey = errors.New("account-private-key is required")
	errMissingRelayerURL = errors.New("relayer-url is required")
)

// Config is the complete depository configuration. Fields are optional unless
// the command in use needs them; see RequireRegistry and RequireRelayer.
type Config struct {
	LogLevel                  string `mapstructure:"log-level" json:"log-level"`
	RPCURL                    string `mapstructure:"rpc-url" json:"rpc-url"`
	RegistryAddress           string `mapstructure:"registry-address" json:"registry-address"`
	AccountPrivateKey         string `mapstructure:"account-private-key" json:"account-private-key"`
	RelayerURL                string `mapstructure:"relayer-url" json:"relayer-url"`
	DecryptDurationDays       uint64 `mapstructure:"decrypt-duration-days" json:"decrypt-duration-days"`
	MaxBaseFee                uint64 `mapstructure:"max-base-fee" json:"max-base-fee"`
	MaxPriorityFeePerGas      uint64 `mapstructure:"max-priority-fee-per-gas" json:"max-priority-fee-per-gas"`
	GasLimit                  uint64 `mapstructure:"gas-limit" json:"gas-limit"`
	TxInclusionTimeoutSeconds uint64 `mapstructure:"tx-inclusion-timeout-seconds" json:"tx-inclusion-timeout-seconds"`
	CacheTTLSeconds           uint64 `mapstructure:"cache-ttl-seconds" json:"cache-ttl-seconds"`
	APIPort                   uint16 `mapstructure:"api-port" json:"api-port"`
	MetricsPort               uint16 `mapstructure:"metrics-port" json:"metrics-port"`

	// Relayer server settings.
	ChainID            uint64 `mapstructure:"chain-id" json:"chain-id"`
	DecryptionContract string `mapstructure:"decryption-contract" json:"decryption-contract"`
	NetworkPrivateKey  string `mapstructure:"network-private-key" json:"network-private-key"`
	SignerPrivateKey   string `mapstructure:"signer-private-key" json:"signer-private-key"`
}

// Validate checks every value that is set.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.RPCURL != "" {
		if err := validateURL(c.RPCURL); err != nil {
			return fmt.Errorf("invalid rpc-url: %w", err)
		}
	}
	if c.RelayerURL != "" {
		if err := validateURL(c.RelayerURL); err != nil {
			return fmt.Errorf("invalid relayer-url: %w", err)
		}
	}
	if c.RegistryAddress != "" && !common.IsHexAddress(c.RegistryAddress) {
		return fmt.Errorf("invalid registry-address %q", c.RegistryAddress)
	}
	if c.DecryptionContract != "" && !common.IsHexAddress(c.DecryptionContract) {
		return fmt.Errorf("invalid decryption-contract %q", c.DecryptionContract)
	}
	for key, value := range map[string]string{
		AccountPrivateKeyKey: c.AccountPrivateKey,
		NetworkPrivateKeyKey: c.NetworkPrivateKey,
		SignerPrivateKeyKey:  c.SignerPrivateKey,
	} {
		if value == "" {
			continue
		}
		if err := utils.ValidatePrivateKey(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if c.DecryptDurationDays == 0 || c.DecryptDurationDays > eip712.MaxDurationDays {
		return fmt.Errorf("%s: %w", DecryptDurationDaysKey, eip712.ErrInvalidDuration)
	}
	if c.TxInclusionTimeoutSeconds == 0 {
		return fmt.Errorf("%s must be positive", TxInclusionTimeoutSecondsKey)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("%s must be positive", ChainIDKey)
	}
	return nil
}

// RequireRegistry checks the settings needed to talk to a deployed registry.
func (c *Config) RequireRegistry() error {
	switch {
	case c.RPCURL == "":
		return errMissingRPCURL
	case c.RegistryAddress == "":
		return errMissingRegistry
	case c.AccountPrivateKey == "":
		return errMissingAccountKey
	}
	return c.RequireRelayer()
}

func (c *Config) RequireRelayer() error {
	if c.RelayerURL == "" {
		return errMissingRelayerURL
	}
	return nil
}

func (c *Config) Registry() common.Address {
	return common.HexToAddress(c.RegistryAddress)
}

func (c *Config) DecryptionVerifier() common.Address {
	return common.HexToAddress(c.DecryptionContract)
}

func (c *Config) TxInclusionTimeout() time.Duration {
	return time.Duration(c.TxInclusionTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) MaxBaseFeeWei() *big.Int {
	return new(big.Int).SetUint64(c.MaxBaseFee)
}

func (c *Config) MaxPriorityFeePerGasWei() *big.Int {
	return new(big.Int).SetUint64(c.MaxPriorityFeePerGas)
}

func validateURL(s string) error {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute url", s)
	}
	return nil
}
