package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// TransitionAccount captures a single account's observable change: its status, info and storage before and after.
// A nil Info means the account does not exist after the transition; a nil PreviousInfo means it did not exist before.
type TransitionAccount struct {
	// Info describes the account info after the transition, or nil if the account no longer exists.
	Info *AccountInfo

	// Status describes the cache status of the account after the transition.
	Status AccountStatus

	// PreviousInfo describes the account info before the transition, or nil if the account did not exist.
	PreviousInfo *AccountInfo

	// PreviousStatus describes the cache status of the account before the transition.
	PreviousStatus AccountStatus

	// Storage describes the changed storage slots with their previous and present values.
	Storage StorageWithOriginalValues

	// StorageWasDestroyed indicates that all storage of the account was wiped by this transition.
	StorageWasDestroyed bool
}

// AddressTransition pairs a TransitionAccount with the address it applies to.
type AddressTransition struct {
	// Address describes the account the transition applies to.
	Address common.Address

	// Transition describes the account's change.
	Transition *TransitionAccount
}

// Copy returns a deep copy of the transition.
func (t *TransitionAccount) Copy() *TransitionAccount {
	c := *t
	c.Info = copyInfoPtr(t.Info)
	c.PreviousInfo = copyInfoPtr(t.PreviousInfo)
	c.Storage = t.Storage.Copy()
	return &c
}

// HasNewContract returns the code hash and bytecode of the account if the transition changed its code hash and the
// new bytecode is inlined. The boolean is false otherwise.
func (t *TransitionAccount) HasNewContract() (common.Hash, []byte, bool) {
	var present, previous *common.Hash
	if t.Info != nil {
		present = &t.Info.CodeHash
	}
	if t.PreviousInfo != nil {
		previous = &t.PreviousInfo.CodeHash
	}

	// Unchanged when both sides agree on existence and code hash
	if (present == nil) == (previous == nil) && (present == nil || *present == *previous) {
		return common.Hash{}, nil, false
	}
	if t.Info == nil || t.Info.Code == nil {
		return common.Hash{}, nil, false
	}
	return t.Info.CodeHash, t.Info.Code, true
}

// PreviousBalance returns the balance before the transition, or zero if the account did not exist.
func (t *TransitionAccount) PreviousBalance() uint256.Int {
	if t.PreviousInfo == nil {
		return uint256.Int{}
	}
	return t.PreviousInfo.Balance
}

// CurrentBalance returns the balance after the transition, or zero if the account no longer exists.
func (t *TransitionAccount) CurrentBalance() uint256.Int {
	if t.Info == nil {
		return uint256.Int{}
	}
	return t.Info.Balance
}

// Update merges a later transition of the same account into this one. The earliest previous state is kept while the
// present state is taken from other. Slots which return to their original value are dropped.
func (t *TransitionAccount) Update(other *TransitionAccount) {
	t.Info = copyInfoPtr(other.Info)
	t.Status = other.Status

	// A destruction wipes any storage changes recorded so far.
	if other.Status == AccountStatusDestroyed || other.Status == AccountStatusDestroyedAgain {
		t.Storage = other.Storage.Copy()
		t.StorageWasDestroyed = true
		return
	}

	if t.Storage == nil {
		t.Storage = make(StorageWithOriginalValues, len(other.Storage))
	}
	for key, slot := range other.Storage {
		existing, ok := t.Storage[key]
		if !ok {
			t.Storage[key] = slot
			continue
		}
		if existing.PreviousOrOriginalValue.Eq(&slot.PresentValue) {
			delete(t.Storage, key)
		} else {
			existing.PresentValue = slot.PresentValue
			t.Storage[key] = existing
		}
	}
}
