// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/ethereum/go-ethereum/common"
)

// State is the unlock state of a database in this session.
type State uint8

const (
	// Locked is the state of every database when a session starts.
	Locked State = iota
	Decrypting
	Unlocked
	Failed
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Decrypting:
		return "decrypting"
	case Unlocked:
		return "unlocked"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type session struct {
	state      State
	identifier common.Address
	err        error
}

// Busy keys, one per user control.
const busyCreate = "create"

func busyStore(id uint64) string         { return "store/" + formatID(id) }
func busyGrant(id uint64) string         { return "grant/" + formatID(id) }
func busyUnlock(id uint64) string        { return "unlock/" + formatID(id) }
func busyDecryptValues(id uint64) string { return "decrypt-values/" + formatID(id) }
