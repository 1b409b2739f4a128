// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variables are the upper-cased keys with this prefix.
	EnvPrefix = "DEPOSITORY"

	// Top-level configuration keys
	LogLevelKey                  = "log-level"
	RPCURLKey                    = "rpc-url"
	RegistryAddressKey           = "registry-address"
	AccountPrivateKeyKey         = "account-private-key"
	RelayerURLKey                = "relayer-url"
	DecryptDurationDaysKey       = "decrypt-duration-days"
	MaxBaseFeeKey                = "max-base-fee"
	MaxPriorityFeePerGasKey      = "max-priority-fee-per-gas"
	GasLimitKey                  = "gas-limit"
	TxInclusionTimeoutSecondsKey = "tx-inclusion-timeout-seconds"
	CacheTTLSecondsKey           = "cache-ttl-seconds"
	APIPortKey                   = "api-port"
	MetricsPortKey               = "metrics-port"
	ChainIDKey                   = "chain-id"
	DecryptionContractKey        = "decryption-contract"
	NetworkPrivateKeyKey         = "network-private-key"
	SignerPrivateKeyKey          = "signer-private-key"
)
