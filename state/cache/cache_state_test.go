package cache

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/crytic/cachestate/config"
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAddress returns a distinct address for each id.
func testAddress(id uint64) common.Address {
	return common.BytesToAddress(uint256.NewInt(id + 1).Bytes())
}

// applyExpectingViolation applies evmState and returns the contract violation it raised, if any.
func applyExpectingViolation(c *CacheState, evmState types.EvmState) (err error) {
	defer RecoverContractViolation(&err)
	c.ApplyEvmState(evmState)
	return nil
}

// TestApplyUntouchedAccount ensures untouched accounts produce no transition and are left unmodified.
func TestApplyUntouchedAccount(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	c.InsertAccount(addr, fundedInfo(10))

	account := types.NewEvmAccount(addr, fundedInfo(99)).MarkSelfDestruct().MarkCreated()
	transitions := c.ApplyEvmState(types.EvmState{account})
	assert.Empty(t, transitions)

	status, ok := c.AccountStatus(addr)
	require.True(t, ok)
	assert.Equal(t, types.AccountStatusLoaded, status)
	info, _ := c.AccountInfo(addr)
	assert.Equal(t, u256(10), info.Balance)

	// Untouched accounts need not be cached at all
	missing := types.NewEvmAccount(testAddress(1), fundedInfo(1))
	assert.NoError(t, applyExpectingViolation(c, types.EvmState{missing}))
}

// TestApplySelfDestructPrecedence ensures self-destruction wins over every other flag.
func TestApplySelfDestructPrecedence(t *testing.T) {
	flagSets := []func(a *types.EvmAccount) *types.EvmAccount{
		func(a *types.EvmAccount) *types.EvmAccount { return a },
		func(a *types.EvmAccount) *types.EvmAccount { return a.MarkCreated() },
	}
	infos := []types.AccountInfo{types.NewEmptyAccountInfo(), fundedInfo(7), contractInfo(1, []byte{0x01})}

	for _, stateClear := range []bool{true, false} {
		for _, setFlags := range flagSets {
			for _, info := range infos {
				c := NewCacheState(stateClear)
				addr := testAddress(0)
				c.InsertAccount(addr, fundedInfo(3))

				account := setFlags(types.NewEvmAccount(addr, info).MarkTouch().MarkSelfDestruct())
				account.SetStorage(common.HexToHash("0x01"), u256(0), u256(5))
				transitions := c.ApplyEvmState(types.EvmState{account})

				require.Len(t, transitions, 1)
				transition := transitions[0].Transition
				assert.True(t, transition.Status.WasDestroyed())
				assert.Nil(t, transition.Info)
				assert.Empty(t, transition.Storage)
				assert.True(t, transition.StorageWasDestroyed)
			}
		}
	}
}

// TestApplyCreationDedup ensures a code hash created at several addresses is stored once.
func TestApplyCreationDedup(t *testing.T) {
	c := NewCacheState(true)
	code := []byte{0x60, 0x80, 0x60, 0x40}
	info := contractInfo(0, code)
	info.Nonce = 1

	for i := uint64(0); i < 3; i++ {
		c.InsertNotExisting(testAddress(i))
	}

	// Two creations in one batch, one in a later batch
	c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(testAddress(0), info).MarkTouch().MarkCreated(),
		types.NewEvmAccount(testAddress(1), info).MarkTouch().MarkCreated(),
	})
	c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(testAddress(2), info).MarkTouch().MarkCreated(),
	})

	assert.Equal(t, 1, c.Contracts().Len())
	stored, ok := c.Contract(info.CodeHash)
	require.True(t, ok)
	assert.Equal(t, code, stored)
}

// TestApplyCreationRegistersEmptyCode ensures an account created without code registers the empty code hash.
func TestApplyCreationRegistersEmptyCode(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	c.InsertNotExisting(addr)

	transitions := c.ApplyEvmState(types.EvmState{types.NewEvmAccount(addr, fundedInfo(1)).MarkTouch().MarkCreated()})
	require.Len(t, transitions, 1)
	assert.Equal(t, types.AccountStatusInMemoryChange, transitions[0].Transition.Status)

	code, ok := c.Contract(types.EmptyCodeHash)
	require.True(t, ok)
	assert.Empty(t, code)
}

// TestApplyCreationWithCodeButZeroHash ensures bytecode is never registered under the empty code hash.
func TestApplyCreationWithCodeButZeroHash(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	c.InsertNotExisting(addr)

	info := fundedInfo(1)
	info.CodeHash = common.Hash{}
	info.Code = []byte{0x60, 0x80}
	c.ApplyEvmState(types.EvmState{types.NewEvmAccount(addr, info).MarkTouch().MarkCreated()})

	assert.False(t, c.Contracts().Contains(types.EmptyCodeHash))
	assert.Zero(t, c.Contracts().Len())

	// A later codeless creation still registers empty code under the empty code hash
	other := testAddress(1)
	c.InsertNotExisting(other)
	c.ApplyEvmState(types.EvmState{types.NewEvmAccount(other, fundedInfo(1)).MarkTouch().MarkCreated()})
	code, ok := c.Contract(types.EmptyCodeHash)
	require.True(t, ok)
	assert.Empty(t, code)
}

// TestApplyStateClearIdempotence ensures touching a cleared empty account a second time emits nothing.
func TestApplyStateClearIdempotence(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	c.InsertAccount(addr, types.NewEmptyAccountInfo())

	batch := func() types.EvmState {
		return types.EvmState{types.NewEvmAccount(addr, types.NewEmptyAccountInfo()).MarkTouch()}
	}

	transitions := c.ApplyEvmState(batch())
	require.Len(t, transitions, 1)
	assert.Equal(t, types.AccountStatusDestroyed, transitions[0].Transition.Status)

	assert.Empty(t, c.ApplyEvmState(batch()))
	assert.Empty(t, c.ApplyEvmState(batch()))
}

// TestApplyLegacyRetention ensures empty accounts are kept when state clearing is disabled.
func TestApplyLegacyRetention(t *testing.T) {
	c := NewCacheState(false)
	addr := testAddress(0)
	c.InsertAccount(addr, fundedInfo(10))

	transitions := c.ApplyEvmState(types.EvmState{types.NewEvmAccount(addr, types.NewEmptyAccountInfo()).MarkTouch()})
	require.Len(t, transitions, 1)
	transition := transitions[0].Transition
	require.NotNil(t, transition.Info)
	assert.True(t, transition.Info.IsEmpty())
	assert.False(t, transition.StorageWasDestroyed)

	info, ok := c.AccountInfo(addr)
	require.True(t, ok)
	require.NotNil(t, info)
	assert.True(t, info.IsEmpty())
}

// TestApplyPreservesOrder ensures transitions follow the order of the batch.
func TestApplyPreservesOrder(t *testing.T) {
	c := NewCacheState(true)
	r := rand.New(rand.NewSource(1))
	numAccounts := 64

	ids := r.Perm(numAccounts)
	evmState := make(types.EvmState, 0, numAccounts)
	expected := make([]common.Address, 0, numAccounts)
	for i, id := range ids {
		addr := testAddress(uint64(id))
		c.InsertAccount(addr, fundedInfo(1))

		account := types.NewEvmAccount(addr, fundedInfo(2))
		// Every third account is untouched and must be skipped without disturbing the order
		if i%3 != 0 {
			account.MarkTouch()
			expected = append(expected, addr)
		}
		evmState = append(evmState, account)
	}

	transitions := c.ApplyEvmState(evmState)
	actual := make([]common.Address, 0, len(transitions))
	for _, transition := range transitions {
		actual = append(actual, transition.Address)
	}
	assert.Equal(t, expected, actual)
}

// TestApplyChangedAccount checks a plain balance and storage change of a loaded account.
func TestApplyChangedAccount(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	slot := common.HexToHash("0x01")
	untouchedSlot := common.HexToHash("0x02")
	c.InsertAccount(addr, fundedInfo(10))

	account := types.NewEvmAccount(addr, fundedInfo(5)).MarkTouch()
	account.SetStorage(slot, u256(0), u256(1))
	account.SetStorage(untouchedSlot, u256(4), u256(4))
	transitions := c.ApplyEvmState(types.EvmState{account})

	require.Len(t, transitions, 1)
	assert.Equal(t, addr, transitions[0].Address)
	transition := transitions[0].Transition
	assert.Equal(t, u256(10), transition.PreviousBalance())
	assert.Equal(t, u256(5), transition.CurrentBalance())
	assert.Equal(t, types.StorageWithOriginalValues{slot: types.NewStorageSlot(u256(0), u256(1))}, transition.Storage)
	assert.Equal(t, types.AccountStatusLoaded, transition.PreviousStatus)
	assert.Equal(t, types.AccountStatusInMemoryChange, transition.Status)

	value, ok := c.StorageSlot(addr, slot)
	require.True(t, ok)
	assert.Equal(t, u256(1), value)
}

// TestApplyMissingAccount ensures a touched address the loader never inserted is a contract violation.
func TestApplyMissingAccount(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)

	err := applyExpectingViolation(c, types.EvmState{types.NewEvmAccount(addr, fundedInfo(1)).MarkTouch()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAccountNotCached))

	var violation *ContractViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, addr, violation.Address)

	// No entry was created for the address
	_, ok := c.AccountStatus(addr)
	assert.False(t, ok)
	assert.Zero(t, c.NumAccounts())
}

// TestApplyCreatedAndSelfDestructed ensures a contract created and destroyed in one batch yields one destroyed
// transition while its code stays registered.
func TestApplyCreatedAndSelfDestructed(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	c.InsertAccount(addr, fundedInfo(1))

	info := contractInfo(0, []byte{0x60, 0x00, 0xff})
	transitions := c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(addr, info).MarkTouch().MarkCreated().MarkSelfDestruct(),
	})

	require.Len(t, transitions, 1)
	assert.Equal(t, types.AccountStatusDestroyed, transitions[0].Transition.Status)
	assert.True(t, c.Contracts().Contains(info.CodeHash))

	// Without a prior account the destruction is not observable, though the code is still registered
	other := testAddress(1)
	c.InsertNotExisting(other)
	otherInfo := contractInfo(0, []byte{0x60, 0x01, 0xff})
	transitions = c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(other, otherInfo).MarkTouch().MarkCreated().MarkSelfDestruct(),
	})
	assert.Empty(t, transitions)
	assert.True(t, c.Contracts().Contains(otherInfo.CodeHash))
}

// TestApplyEmptyLoadedAccountCleared ensures a loaded zero balance account touched while empty is removed once.
func TestApplyEmptyLoadedAccountCleared(t *testing.T) {
	c := NewCacheState(true)
	emptyAddr := testAddress(0)
	nonceAddr := testAddress(1)
	c.InsertAccount(emptyAddr, types.NewEmptyAccountInfo())
	c.InsertAccount(nonceAddr, types.AccountInfo{Nonce: 1, CodeHash: types.EmptyCodeHash})

	batch := func() types.EvmState {
		return types.EvmState{
			types.NewEvmAccount(emptyAddr, types.NewEmptyAccountInfo()).MarkTouch(),
			types.NewEvmAccount(nonceAddr, types.NewEmptyAccountInfo()).MarkTouch(),
		}
	}

	transitions := c.ApplyEvmState(batch())
	require.Len(t, transitions, 2)
	for _, transition := range transitions {
		assert.Equal(t, types.AccountStatusDestroyed, transition.Transition.Status)
		assert.Nil(t, transition.Transition.Info)
	}
	assert.Empty(t, c.ApplyEvmState(batch()))

	info, ok := c.AccountInfo(emptyAddr)
	assert.True(t, ok)
	assert.Nil(t, info)
}

// TestStateClearFlagToggle ensures the flag is read on every empty account decision.
func TestStateClearFlagToggle(t *testing.T) {
	c := NewCacheState(false)
	assert.False(t, c.HasStateClear())
	first := testAddress(0)
	second := testAddress(1)
	c.InsertAccount(first, fundedInfo(1))
	c.InsertAccount(second, fundedInfo(1))

	transitions := c.ApplyEvmState(types.EvmState{types.NewEvmAccount(first, types.NewEmptyAccountInfo()).MarkTouch()})
	require.Len(t, transitions, 1)
	assert.NotNil(t, transitions[0].Transition.Info)

	c.SetStateClearFlag(true)
	assert.True(t, c.HasStateClear())
	transitions = c.ApplyEvmState(types.EvmState{types.NewEvmAccount(second, types.NewEmptyAccountInfo()).MarkTouch()})
	require.Len(t, transitions, 1)
	assert.Nil(t, transitions[0].Transition.Info)
}

// TestInsertAccountStatuses checks the status chosen by each loader operation.
func TestInsertAccountStatuses(t *testing.T) {
	c := NewCacheState(true)
	slot := common.HexToHash("0x01")

	c.InsertNotExisting(testAddress(0))
	c.InsertAccount(testAddress(1), types.NewEmptyAccountInfo())
	c.InsertAccount(testAddress(2), fundedInfo(1))

	storage := types.PlainStorage{slot: u256(8)}
	c.InsertAccountWithStorage(testAddress(3), contractInfo(0, []byte{0x00}), storage)
	// The cache keeps its own copy of the storage
	storage[slot] = u256(9)

	expected := []types.AccountStatus{
		types.AccountStatusLoadedNotExisting,
		types.AccountStatusLoadedEmptyEIP161,
		types.AccountStatusLoaded,
		types.AccountStatusLoaded,
	}
	for i, status := range expected {
		actual, ok := c.AccountStatus(testAddress(uint64(i)))
		require.True(t, ok)
		assert.Equal(t, status, actual)
	}

	value, ok := c.StorageSlot(testAddress(3), slot)
	require.True(t, ok)
	assert.Equal(t, u256(8), value)
	assert.Equal(t, 4, c.NumAccounts())
}

// TestTrieAccounts ensures only existing accounts are yielded and the sequence can be consumed repeatedly.
func TestTrieAccounts(t *testing.T) {
	c := NewCacheStateWithConfig(config.CacheConfig{StateClear: true, Shards: 4}, nil)
	c.InsertNotExisting(testAddress(0))
	c.InsertAccount(testAddress(1), fundedInfo(1))
	c.InsertAccount(testAddress(2), fundedInfo(2))
	c.InsertAccount(testAddress(3), fundedInfo(3))
	c.ApplyEvmState(types.EvmState{types.NewEvmAccount(testAddress(3), fundedInfo(0)).MarkTouch().MarkSelfDestruct()})

	for round := 0; round < 2; round++ {
		balances := make(map[common.Address]uint256.Int)
		for addr, account := range c.TrieAccounts() {
			balances[addr] = account.Info.Balance
		}
		assert.Equal(t, map[common.Address]uint256.Int{
			testAddress(1): u256(1),
			testAddress(2): u256(2),
		}, balances)
	}

	// Stopping early is honored
	count := 0
	for range c.TrieAccounts() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

// TestIncrementAndDrainBalances checks the balance-only operations of the cache.
func TestIncrementAndDrainBalances(t *testing.T) {
	c := NewCacheState(true)
	for i := uint64(0); i < 3; i++ {
		c.InsertAccount(testAddress(i), fundedInfo(10))
	}

	transitions := c.IncrementBalances(map[common.Address]uint256.Int{
		testAddress(2): u256(5),
		testAddress(0): u256(1),
		testAddress(1): u256(0),
	})
	require.Len(t, transitions, 2)
	assert.Equal(t, testAddress(0), transitions[0].Address)
	assert.Equal(t, testAddress(2), transitions[1].Address)
	assert.Equal(t, u256(15), transitions[1].Transition.CurrentBalance())

	total, transitions := c.DrainBalances([]common.Address{testAddress(2), testAddress(0)})
	assert.Equal(t, u256(26), total)
	require.Len(t, transitions, 2)
	assert.Equal(t, testAddress(2), transitions[0].Address)

	info, _ := c.AccountInfo(testAddress(0))
	assert.True(t, info.Balance.IsZero())

	// Balance operations are bound by the loader contract too
	var err error
	func() {
		defer RecoverContractViolation(&err)
		c.IncrementBalances(map[common.Address]uint256.Int{testAddress(9): u256(1)})
	}()
	assert.True(t, errors.Is(err, ErrAccountNotCached))
}

// TestTransitionStateAcrossBatches merges the transitions of several batches into a single diff per address.
func TestTransitionStateAcrossBatches(t *testing.T) {
	c := NewCacheState(true)
	addr := testAddress(0)
	slot := common.HexToHash("0x01")
	c.InsertAccount(addr, fundedInfo(10))

	state := types.NewTransitionState()
	first := c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(addr, fundedInfo(8)).MarkTouch().SetStorage(slot, u256(0), u256(1)),
	})
	state.AddTransitions(first)
	state.AddTransitions(c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(addr, fundedInfo(6)).MarkTouch().SetStorage(slot, u256(1), u256(0)),
	}))

	// The first batch's record is unaffected by the merge
	require.Len(t, first, 1)
	assert.Equal(t, u256(8), first[0].Transition.CurrentBalance())
	assert.Equal(t, u256(1), first[0].Transition.Storage[slot].PresentValue)

	merged := state.Take()
	require.Len(t, merged, 1)
	transition := merged[0].Transition
	assert.Equal(t, u256(10), transition.PreviousBalance())
	assert.Equal(t, u256(6), transition.CurrentBalance())
	// The slot returned to its original value
	assert.Empty(t, transition.Storage)
	assert.Zero(t, state.Len())
}

// TestCacheStateRace applies batches to overlapping addresses from many goroutines.
func TestCacheStateRace(t *testing.T) {
	c := NewCacheStateWithConfig(config.CacheConfig{StateClear: true, Shards: 8}, nil)
	numAccounts := 16
	for i := 0; i < numAccounts; i++ {
		c.InsertAccount(testAddress(uint64(i)), fundedInfo(1))
	}
	writers := 8
	numWrites := 2_000
	readers := 8
	numReads := 2_000

	var wg sync.WaitGroup
	wg.Add(writers + readers)

	write := func(r *rand.Rand, writesRem int) {
		for writesRem > 0 {
			addr := testAddress(uint64(r.Intn(numAccounts)))
			info := fundedInfo(uint64(r.Intn(100)) + 1)
			account := types.NewEvmAccount(addr, info).MarkTouch()
			if r.Intn(4) == 0 {
				code := []byte{byte(r.Intn(8))}
				info = contractInfo(1, code)
				account = types.NewEvmAccount(addr, info).MarkTouch().MarkCreated()
			}
			transitions := c.ApplyEvmState(types.EvmState{account})
			assert.Len(t, transitions, 1)
			writesRem--
		}
		wg.Done()
	}

	read := func(r *rand.Rand, readsRem int) {
		for readsRem > 0 {
			addr := testAddress(uint64(r.Intn(numAccounts)))
			_, _ = c.AccountInfo(addr)
			_, _ = c.StorageSlot(addr, common.Hash{})
			if readsRem%500 == 0 {
				for range c.TrieAccounts() {
				}
			}
			readsRem--
		}
		wg.Done()
	}

	for i := 0; i < readers; i++ {
		go read(rand.New(rand.NewSource(int64(i))), numReads)
	}
	for i := 0; i < writers; i++ {
		go write(rand.New(rand.NewSource(int64(i))), numWrites)
	}
	wg.Wait()

	assert.Equal(t, numAccounts, c.NumAccounts())
	assert.LessOrEqual(t, c.Contracts().Len(), 8)
}

// metricValue returns the value of a gathered counter or gauge, optionally matching a status label.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, status string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if status != "" && !hasLabel(metric, "status", status) {
				continue
			}
			if family.GetType() == dto.MetricType_GAUGE {
				return metric.GetGauge().GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

// hasLabel returns true if metric carries the label name with the provided value.
func hasLabel(metric *dto.Metric, name string, value string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

// TestCacheStateMetrics checks the collectors updated while applying batches.
func TestCacheStateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	// Registering twice on the same registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)

	c := NewCacheStateWithConfig(config.CacheConfig{StateClear: true}, metrics)
	c.InsertAccount(testAddress(0), fundedInfo(1))
	c.InsertAccount(testAddress(1), types.NewEmptyAccountInfo())
	c.InsertNotExisting(testAddress(2))
	// Replacing an entry does not count as a new account
	c.InsertNotExisting(testAddress(2))

	c.ApplyEvmState(types.EvmState{
		types.NewEvmAccount(testAddress(0), fundedInfo(2)).MarkTouch(),
		types.NewEvmAccount(testAddress(1), types.NewEmptyAccountInfo()).MarkTouch(),
		types.NewEvmAccount(testAddress(2), contractInfo(0, []byte{0x01})).MarkTouch().MarkCreated(),
		types.NewEvmAccount(testAddress(3), fundedInfo(1)),
	})

	assert.Equal(t, float64(3), metricValue(t, reg, "cachestate_cached_accounts", ""))
	assert.Equal(t, float64(1), metricValue(t, reg, "cachestate_cached_contracts", ""))
	assert.Equal(t, float64(1), metricValue(t, reg, "cachestate_batches_total", ""))
	assert.Equal(t, float64(1), metricValue(t, reg, "cachestate_untouched_accounts_total", ""))
	assert.Equal(t, float64(2), metricValue(t, reg, "cachestate_transitions_total", "InMemoryChange"))
	assert.Equal(t, float64(1), metricValue(t, reg, "cachestate_transitions_total", "Destroyed"))
}
