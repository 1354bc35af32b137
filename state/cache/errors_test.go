package cache

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecoverContractViolation ensures only contract violations are recovered.
func TestRecoverContractViolation(t *testing.T) {
	addr := testAddress(3)
	var err error
	func() {
		defer RecoverContractViolation(&err)
		panic(newContractViolation(addr))
	}()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccountNotCached))
	assert.Contains(t, err.Error(), addr.Hex())

	// Other panics pass through untouched
	assert.PanicsWithValue(t, "boom", func() {
		var other error
		defer RecoverContractViolation(&other)
		panic("boom")
	})

	// Returning normally leaves the error alone
	err = nil
	func() {
		defer RecoverContractViolation(&err)
	}()
	assert.NoError(t, err)
}
