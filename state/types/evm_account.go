package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// EvmAccountStatus is a bit set of flags the interpreter attaches to an account it produced output for.
type EvmAccountStatus uint8

const (
	// EvmAccountTouched marks an account with an observable side effect during execution.
	EvmAccountTouched EvmAccountStatus = 1 << iota
	// EvmAccountCreated marks an account created during execution.
	EvmAccountCreated
	// EvmAccountSelfDestructed marks an account self-destructed during execution.
	EvmAccountSelfDestructed
)

// EvmStorageSlot is a storage slot as reported by the interpreter: its value before execution and after it.
type EvmStorageSlot struct {
	// OriginalValue describes the value of the slot before execution.
	OriginalValue uint256.Int

	// PresentValue describes the value of the slot after execution.
	PresentValue uint256.Int
}

// IsChanged returns true if execution changed the value of the slot.
func (s EvmStorageSlot) IsChanged() bool {
	return !s.OriginalValue.Eq(&s.PresentValue)
}

// EvmAccount is the raw execution result for a single account.
type EvmAccount struct {
	// Address describes the account this result is for.
	Address common.Address

	// Info describes the account info after execution.
	Info AccountInfo

	// Storage describes every storage slot execution accessed.
	Storage map[common.Hash]EvmStorageSlot

	// Status describes the flags execution set on the account.
	Status EvmAccountStatus
}

// NewEvmAccount creates an EvmAccount for addr with the provided post-execution info and no flags set.
func NewEvmAccount(addr common.Address, info AccountInfo) *EvmAccount {
	return &EvmAccount{
		Address: addr,
		Info:    info,
		Storage: make(map[common.Hash]EvmStorageSlot),
	}
}

// MarkTouch flags the account as touched.
func (a *EvmAccount) MarkTouch() *EvmAccount {
	a.Status |= EvmAccountTouched
	return a
}

// MarkCreated flags the account as created.
func (a *EvmAccount) MarkCreated() *EvmAccount {
	a.Status |= EvmAccountCreated
	return a
}

// MarkSelfDestruct flags the account as self-destructed.
func (a *EvmAccount) MarkSelfDestruct() *EvmAccount {
	a.Status |= EvmAccountSelfDestructed
	return a
}

// SetStorage records a storage slot with its original and present value.
func (a *EvmAccount) SetStorage(key common.Hash, original, present uint256.Int) *EvmAccount {
	a.Storage[key] = EvmStorageSlot{OriginalValue: original, PresentValue: present}
	return a
}

// IsTouched returns true if the account was touched.
func (a *EvmAccount) IsTouched() bool {
	return a.Status&EvmAccountTouched != 0
}

// IsCreated returns true if the account was created.
func (a *EvmAccount) IsCreated() bool {
	return a.Status&EvmAccountCreated != 0
}

// IsSelfDestructed returns true if the account was self-destructed.
func (a *EvmAccount) IsSelfDestructed() bool {
	return a.Status&EvmAccountSelfDestructed != 0
}

// IsEmpty returns true if the account is empty after execution.
func (a *EvmAccount) IsEmpty() bool {
	return a.Info.IsEmpty()
}

// ChangedStorage returns the slots execution changed, each with its previous and new value.
func (a *EvmAccount) ChangedStorage() StorageWithOriginalValues {
	changed := make(StorageWithOriginalValues)
	for key, slot := range a.Storage {
		if slot.IsChanged() {
			changed[key] = NewStorageSlot(slot.OriginalValue, slot.PresentValue)
		}
	}
	return changed
}

// EvmState is the output of one execution batch. It is ordered: transitions are produced in the order accounts
// appear. An address must appear at most once.
type EvmState []*EvmAccount
