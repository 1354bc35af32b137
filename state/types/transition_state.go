package types

import "github.com/crytic/medusa-geth/common"

// TransitionState accumulates the transitions of several batches (e.g. every transaction of a block), merging the
// transitions of each address into one. Addresses are kept in the order they were first seen.
type TransitionState struct {
	transitions map[common.Address]*TransitionAccount
	order       []common.Address
}

// NewTransitionState creates an empty TransitionState.
func NewTransitionState() *TransitionState {
	return &TransitionState{
		transitions: make(map[common.Address]*TransitionAccount),
		order:       make([]common.Address, 0),
	}
}

// AddTransitions merges the provided transitions into the state. The transitions are copied, so records returned for
// earlier batches are never changed by later merges.
func (s *TransitionState) AddTransitions(transitions []AddressTransition) {
	for _, at := range transitions {
		if existing, ok := s.transitions[at.Address]; ok {
			existing.Update(at.Transition)
			continue
		}
		s.transitions[at.Address] = at.Transition.Copy()
		s.order = append(s.order, at.Address)
	}
}

// Len returns the number of accounts with a transition.
func (s *TransitionState) Len() int {
	return len(s.order)
}

// Get returns the merged transition for an address, if any.
func (s *TransitionState) Get(addr common.Address) (*TransitionAccount, bool) {
	t, ok := s.transitions[addr]
	return t, ok
}

// Take returns the merged transitions in first-seen order and resets the state.
func (s *TransitionState) Take() []AddressTransition {
	out := make([]AddressTransition, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, AddressTransition{Address: addr, Transition: s.transitions[addr]})
	}
	s.transitions = make(map[common.Address]*TransitionAccount)
	s.order = make([]common.Address, 0)
	return out
}
