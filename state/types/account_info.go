package types

import (
	"bytes"

	"github.com/crytic/medusa-geth/common"
	coreTypes "github.com/crytic/medusa-geth/core/types"
	"github.com/holiman/uint256"
)

// EmptyCodeHash is the code hash of an account without bytecode. It is the reserved "no code" sentinel.
var EmptyCodeHash = coreTypes.EmptyCodeHash

// AccountInfo describes the balance, nonce and code identity of an account. Code is optional: it is only populated
// when the bytecode has been inlined alongside the account (e.g. for newly created contracts).
type AccountInfo struct {
	// Balance describes the account balance.
	Balance uint256.Int

	// Nonce describes the account nonce.
	Nonce uint64

	// CodeHash describes the hash of the bytecode deployed at the account.
	CodeHash common.Hash

	// Code describes the inlined bytecode, if known.
	Code []byte
}

// NewEmptyAccountInfo returns an AccountInfo with zero balance, zero nonce and no code.
func NewEmptyAccountInfo() AccountInfo {
	return AccountInfo{CodeHash: EmptyCodeHash}
}

// HasCode returns true if the account has bytecode deployed. The zero hash is treated as "no code" so that zero
// values of AccountInfo are empty.
func (a *AccountInfo) HasCode() bool {
	return a.CodeHash != EmptyCodeHash && a.CodeHash != (common.Hash{})
}

// IsEmpty returns true if the account has zero balance, zero nonce and no code.
func (a *AccountInfo) IsEmpty() bool {
	return a.Balance.IsZero() && a.Nonce == 0 && !a.HasCode()
}

// Copy returns a deep copy of the AccountInfo.
func (a *AccountInfo) Copy() AccountInfo {
	c := *a
	if a.Code != nil {
		c.Code = bytes.Clone(a.Code)
	}
	return c
}

// Equal returns true if both infos describe the same balance, nonce, code hash and inlined code.
func (a *AccountInfo) Equal(other *AccountInfo) bool {
	return a.Balance.Eq(&other.Balance) &&
		a.Nonce == other.Nonce &&
		a.CodeHash == other.CodeHash &&
		bytes.Equal(a.Code, other.Code)
}

// copyInfoPtr returns a pointer to a deep copy of info, or nil if info is nil.
func copyInfoPtr(info *AccountInfo) *AccountInfo {
	if info == nil {
		return nil
	}
	c := info.Copy()
	return &c
}
