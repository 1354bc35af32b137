package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
)

// PlainStorage maps a storage slot to its present value.
type PlainStorage map[common.Hash]uint256.Int

// Copy returns a shallow copy of the storage. Values are copied as uint256.Int is a value type.
func (s PlainStorage) Copy() PlainStorage {
	if s == nil {
		return PlainStorage{}
	}
	return maps.Clone(s)
}

// PlainAccount is an account materialized in the cache: its info and the storage slots known for it.
type PlainAccount struct {
	// Info describes the account's balance, nonce and code.
	Info AccountInfo

	// Storage describes the known storage slots of the account.
	Storage PlainStorage
}

// NewPlainAccount creates a PlainAccount from the provided info and storage. A nil storage is replaced with an empty
// one.
func NewPlainAccount(info AccountInfo, storage PlainStorage) *PlainAccount {
	if storage == nil {
		storage = PlainStorage{}
	}
	return &PlainAccount{Info: info, Storage: storage}
}

// NewEmptyPlainAccountWithStorage creates a PlainAccount with empty info and the provided storage.
func NewEmptyPlainAccountWithStorage(storage PlainStorage) *PlainAccount {
	return NewPlainAccount(NewEmptyAccountInfo(), storage)
}

// Copy returns a deep copy of the account.
func (p *PlainAccount) Copy() PlainAccount {
	return PlainAccount{
		Info:    p.Info.Copy(),
		Storage: p.Storage.Copy(),
	}
}
