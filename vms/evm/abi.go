// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	_ "embed"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Registry contract method names.
const (
	methodCreateDatabase         = "createDatabase"
	methodStoreEncryptedValue    = "storeEncryptedValue"
	methodGrantDecryptPermission = "grantDecryptPermission"
	methodGetOwnedDatabases      = "getOwnedDatabases"
	methodGetDatabase            = "getDatabase"
	methodGetDatabaseDecryptors  = "getDatabaseDecryptors"
	methodGetDatabaseValues      = "getDatabaseValues"
	methodTotalDatabases         = "totalDatabases"
)

//go:embed registry_abi.json
var registryABIJSON string

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// databaseInfo mirrors the DatabaseInfo tuple returned by getDatabase.
type databaseInfo struct {
	Name                     string
	Owner                    common.Address
	CreatedAt                uint64
	EncryptedDatabaseAddress [32]byte
	AddressCommitment        [32]byte
	EncryptedValueCount      *big.Int
}
