package fixture

import (
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/math"
)

// Transition describes the JSON encoding of an account transition.
type Transition struct {
	Address             common.Address       `json:"address"`
	Status              types.AccountStatus  `json:"status"`
	PreviousStatus      types.AccountStatus  `json:"previousStatus"`
	Info                *Info                `json:"info"`
	PreviousInfo        *Info                `json:"previousInfo"`
	Storage             map[common.Hash]Slot `json:"storage,omitempty"`
	StorageWasDestroyed bool                 `json:"storageWasDestroyed"`
}

// NewTransitions converts transitions into their JSON encoding, keeping their order.
func NewTransitions(transitions []types.AddressTransition) []Transition {
	out := make([]Transition, 0, len(transitions))
	for _, at := range transitions {
		t := at.Transition
		storage := make(map[common.Hash]Slot, len(t.Storage))
		for key, slot := range t.Storage {
			storage[key] = Slot{
				Original: fromUint256(slot.PreviousOrOriginalValue),
				Present:  fromUint256(slot.PresentValue),
			}
		}
		out = append(out, Transition{
			Address:             at.Address,
			Status:              t.Status,
			PreviousStatus:      t.PreviousStatus,
			Info:                newInfo(t.Info),
			PreviousInfo:        newInfo(t.PreviousInfo),
			Storage:             storage,
			StorageWasDestroyed: t.StorageWasDestroyed,
		})
	}
	return out
}

// PlainAccount describes the JSON encoding of a cached account.
type PlainAccount struct {
	Info    *Info                                 `json:"info"`
	Storage map[common.Hash]*math.HexOrDecimal256 `json:"storage,omitempty"`
}

// NewPlainAccount converts a cached account into its JSON encoding.
func NewPlainAccount(account types.PlainAccount) PlainAccount {
	storage := make(map[common.Hash]*math.HexOrDecimal256, len(account.Storage))
	for key, value := range account.Storage {
		storage[key] = fromUint256(value)
	}
	return PlainAccount{
		Info:    newInfo(&account.Info),
		Storage: storage,
	}
}
