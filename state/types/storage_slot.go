package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// StorageSlot is a storage slot as recorded in a transition: the value before the change and the value after it.
type StorageSlot struct {
	// PreviousOrOriginalValue is the value of the slot before the transition was applied.
	PreviousOrOriginalValue uint256.Int

	// PresentValue is the value of the slot after the transition was applied.
	PresentValue uint256.Int
}

// NewStorageSlot creates a StorageSlot from a previous and present value.
func NewStorageSlot(previous, present uint256.Int) StorageSlot {
	return StorageSlot{PreviousOrOriginalValue: previous, PresentValue: present}
}

// IsChanged returns true if the present value differs from the previous one.
func (s StorageSlot) IsChanged() bool {
	return !s.PreviousOrOriginalValue.Eq(&s.PresentValue)
}

// StorageWithOriginalValues maps storage slots to their previous and present values.
type StorageWithOriginalValues map[common.Hash]StorageSlot

// PresentValues flattens the storage into the present value of each slot.
func (s StorageWithOriginalValues) PresentValues() PlainStorage {
	plain := make(PlainStorage, len(s))
	for key, slot := range s {
		plain[key] = slot.PresentValue
	}
	return plain
}

// Copy returns a copy of the storage. A nil storage stays nil.
func (s StorageWithOriginalValues) Copy() StorageWithOriginalValues {
	if s == nil {
		return nil
	}
	c := make(StorageWithOriginalValues, len(s))
	for key, slot := range s {
		c[key] = slot
	}
	return c
}
