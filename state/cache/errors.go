package cache

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// ErrAccountNotCached indicates that a transition was applied to an address the loader never inserted into the cache.
var ErrAccountNotCached = errors.New("account is not present in the cache")

// ContractViolationError describes a violation of the loader contract: an address was referenced by a transition
// before the loader inserted it. The engine panics with a value of this type rather than returning it, as continuing
// would corrupt the transition log.
type ContractViolationError struct {
	// Address describes the address which was missing from the cache.
	Address common.Address

	// err describes the underlying error, carrying a stack trace.
	err error
}

// newContractViolation creates a ContractViolationError for the provided address.
func newContractViolation(addr common.Address) *ContractViolationError {
	return &ContractViolationError{
		Address: addr,
		err:     errors.WithStack(ErrAccountNotCached),
	}
}

// Error returns the error message string, implementing the `error` interface.
func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%v: %v", e.err, e.Address.Hex())
}

// Unwrap returns the underlying error so errors.Is(err, ErrAccountNotCached) holds.
func (e *ContractViolationError) Unwrap() error {
	return e.err
}

// RecoverContractViolation is meant to be deferred at an API boundary. If the surrounding function panicked with a
// ContractViolationError, the panic is stopped and the error is stored in errPtr. Any other panic is re-raised.
func RecoverContractViolation(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	if violation, ok := r.(*ContractViolationError); ok {
		*errPtr = violation
		return
	}
	panic(r)
}
