// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SanitizeHexString removes the "0x" prefix from a hex string if it exists.
func SanitizeHexString(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) >= 2 && (hex[:2] == "0x" || hex[:2] == "0X") {
		return hex[2:]
	}
	return hex
}

// ValidatePrivateKey checks a hex encoded secp256k1 private key.
func ValidatePrivateKey(hex string) error {
	if _, err := crypto.HexToECDSA(SanitizeHexString(hex)); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	return nil
}
