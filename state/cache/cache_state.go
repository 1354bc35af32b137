package cache

import (
	"bytes"
	"iter"
	"sync/atomic"

	"github.com/crytic/cachestate/config"
	"github.com/crytic/cachestate/logging"
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// AccountInserter describes the loader-facing side of the cache. Before an execution batch references an address, the
// loader must have called exactly one of these methods for it.
type AccountInserter interface {
	// InsertNotExisting marks an address as confirmed absent from the database.
	InsertNotExisting(addr common.Address)

	// InsertAccount inserts an account loaded from the database without storage.
	InsertAccount(addr common.Address, info types.AccountInfo)

	// InsertAccountWithStorage inserts an account loaded from the database with an initial storage snapshot.
	InsertAccountWithStorage(addr common.Address, info types.AccountInfo, storage types.PlainStorage)
}

// CacheState holds every account and contract loaded from the database, applies execution output to them and
// produces the account transitions used to build a bundle of state changes. It is safe for concurrent use.
type CacheState struct {
	// accounts describes the account cache, keyed by address.
	accounts *accountMap

	// contracts describes the bytecode of every contract created or loaded.
	contracts *ContractStore

	// hasStateClear describes whether EIP-161 state clearing (Spurious Dragon) is active.
	hasStateClear atomic.Bool

	// metrics describes the collectors updated by the cache. It may be nil.
	metrics *Metrics

	// logger describes the logger used by the cache.
	logger *logging.Logger
}

var _ AccountInserter = (*CacheState)(nil)

// NewCacheState creates an empty CacheState with the provided state clear flag and a default shard count.
func NewCacheState(hasStateClear bool) *CacheState {
	return NewCacheStateWithConfig(config.CacheConfig{StateClear: hasStateClear}, nil)
}

// NewCacheStateWithConfig creates an empty CacheState from a CacheConfig. metrics may be nil.
func NewCacheStateWithConfig(cfg config.CacheConfig, metrics *Metrics) *CacheState {
	c := &CacheState{
		accounts:  newAccountMap(cfg.Shards),
		contracts: NewContractStore(),
		metrics:   metrics,
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.CACHE_SERVICE),
	}
	c.hasStateClear.Store(cfg.StateClear)
	return c
}

// SetStateClearFlag sets whether EIP-161 state clearing is active. It is read on every empty-account decision.
func (c *CacheState) SetStateClearFlag(hasStateClear bool) {
	c.hasStateClear.Store(hasStateClear)
}

// HasStateClear returns true if EIP-161 state clearing is active.
func (c *CacheState) HasStateClear() bool {
	return c.hasStateClear.Load()
}

// Contracts returns the contract store of the cache.
func (c *CacheState) Contracts() *ContractStore {
	return c.contracts
}

// Contract returns the bytecode stored under codeHash.
func (c *CacheState) Contract(codeHash common.Hash) ([]byte, bool) {
	return c.contracts.Get(codeHash)
}

// InsertContract stores bytecode under codeHash unless it is already present. Returns true if it was inserted.
func (c *CacheState) InsertContract(codeHash common.Hash, code []byte) bool {
	inserted := c.contracts.InsertIfAbsent(codeHash, code)
	if inserted {
		c.metrics.observeContractInserted()
	}
	return inserted
}

// NumAccounts returns the number of cached accounts.
func (c *CacheState) NumAccounts() int {
	return c.accounts.len()
}

// insertEntry stores an entry for addr and updates metrics.
func (c *CacheState) insertEntry(addr common.Address, entry *CacheAccount) {
	if !c.accounts.insert(addr, entry) {
		c.metrics.observeAccountInserted()
	}
}

// InsertNotExisting marks addr as confirmed absent, distinguishing it from an address that was never queried.
func (c *CacheState) InsertNotExisting(addr common.Address) {
	c.insertEntry(addr, NewLoadedNotExistingCacheAccount())
}

// InsertAccount inserts an account loaded from the database. Empty accounts are inserted with the LoadedEmptyEIP161
// status.
func (c *CacheState) InsertAccount(addr common.Address, info types.AccountInfo) {
	c.InsertAccountWithStorage(addr, info, nil)
}

// InsertAccountWithStorage inserts an account loaded from the database along with an initial storage snapshot. The
// storage is copied.
func (c *CacheState) InsertAccountWithStorage(addr common.Address, info types.AccountInfo, storage types.PlainStorage) {
	storage = storage.Copy()
	if info.IsEmpty() {
		c.insertEntry(addr, NewLoadedEmptyEIP161CacheAccount(storage))
	} else {
		c.insertEntry(addr, NewLoadedCacheAccount(info.Copy(), storage))
	}
}

// AccountStatus returns the lifecycle status of addr. The boolean is false if addr is not cached.
func (c *CacheState) AccountStatus(addr common.Address) (types.AccountStatus, bool) {
	var status types.AccountStatus
	ok := c.accounts.view(addr, func(entry *CacheAccount) {
		status = entry.Status()
	})
	return status, ok
}

// AccountInfo returns a copy of the info of addr. The pointer is nil if the account does not exist, and the boolean is
// false if addr is not cached.
func (c *CacheState) AccountInfo(addr common.Address) (*types.AccountInfo, bool) {
	var info *types.AccountInfo
	ok := c.accounts.view(addr, func(entry *CacheAccount) {
		info = entry.AccountInfo()
	})
	return info, ok
}

// StorageSlot returns the cached value of a storage slot of addr. The boolean is false if addr is not cached, does
// not exist, or the slot is unknown.
func (c *CacheState) StorageSlot(addr common.Address, slot common.Hash) (uint256.Int, bool) {
	var (
		value uint256.Int
		found bool
	)
	c.accounts.view(addr, func(entry *CacheAccount) {
		value, found = entry.StorageSlot(slot)
	})
	return value, found
}

// TrieAccounts returns a lazy sequence of every cached address which holds an existing account, paired with a copy of
// the account. It is restartable, and intended for state root computation and tests rather than execution.
func (c *CacheState) TrieAccounts() iter.Seq2[common.Address, types.PlainAccount] {
	return collect(c.accounts, func(entry *CacheAccount) (types.PlainAccount, bool) {
		if entry.account == nil {
			return types.PlainAccount{}, false
		}
		return entry.account.Copy(), true
	})
}

// ApplyEvmState applies the output of one execution batch to the cache. It returns a transition for every address
// whose state observably changed, in the order the addresses appear in the batch.
//
// Every touched address must already be cached: a missing address panics with a *ContractViolationError.
func (c *CacheState) ApplyEvmState(evmState types.EvmState) []types.AddressTransition {
	transitions := make([]types.AddressTransition, 0, len(evmState))
	for _, account := range evmState {
		if transition := c.applyAccountState(account); transition != nil {
			c.metrics.observeTransition(transition.Status)
			transitions = append(transitions, types.AddressTransition{Address: account.Address, Transition: transition})
		}
	}
	c.metrics.observeBatch()

	c.logger.Debug("Applied execution batch", logging.StructuredLogInfo{
		"accounts":    len(evmState),
		"transitions": len(transitions),
	})
	return transitions
}

// applyAccountState applies the execution result of a single account to its cache entry. Returns the resulting
// transition, or nil if nothing observable changed.
func (c *CacheState) applyAccountState(account *types.EvmAccount) *types.TransitionAccount {
	// Accounts which were not touched never change
	if !account.IsTouched() {
		c.metrics.observeSkipped()
		return nil
	}

	var transition *types.TransitionAccount
	found := c.accounts.update(account.Address, func(entry *CacheAccount) {
		transition = c.transitionEntry(entry, account)
	})
	if !found {
		panic(newContractViolation(account.Address))
	}
	return transition
}

// transitionEntry selects the lifecycle operation for a touched account. Self-destruction takes precedence over
// creation, which takes precedence over empty-account handling, which takes precedence over a plain change.
func (c *CacheState) transitionEntry(entry *CacheAccount, account *types.EvmAccount) *types.TransitionAccount {
	// A contract can be created and self-destructed in the same batch, so self-destruction is checked first. Its code
	// is still registered as another address may share the code hash.
	if account.IsSelfDestructed() {
		if account.IsCreated() {
			c.registerCode(account.Address, &account.Info)
		}
		return entry.SelfDestruct()
	}

	changedStorage := account.ChangedStorage()

	if account.IsCreated() {
		c.registerCode(account.Address, &account.Info)
		return entry.NewlyCreated(account.Info.Copy(), changedStorage)
	}

	// Touched empty accounts are removed under EIP-161 and persisted before it
	if account.IsEmpty() {
		if c.HasStateClear() {
			return entry.TouchEmptyEIP161()
		}
		return entry.TouchCreatePreEIP161(changedStorage)
	}

	return entry.Change(account.Info.Copy(), changedStorage)
}

// registerCode stores the bytecode of a created account in the contract store if its code hash is new.
func (c *CacheState) registerCode(addr common.Address, info *types.AccountInfo) {
	if info.Code == nil && info.HasCode() {
		c.logger.Warn("Created account ", addr.Hex(), " has no inlined bytecode for code hash ", info.CodeHash.Hex())
		return
	}
	codeHash := info.CodeHash
	if codeHash == (common.Hash{}) {
		// Only codeless accounts may use the zero hash in place of the empty code hash
		if len(info.Code) != 0 {
			c.logger.Warn("Created account ", addr.Hex(), " has bytecode but no code hash")
			return
		}
		codeHash = types.EmptyCodeHash
	}
	c.InsertContract(codeHash, info.Code)
}

// IncrementBalances adds the provided amounts to the balances of cached accounts, e.g. for block rewards or
// withdrawals. Transitions are returned ordered by address; zero amounts yield none. Every address must be cached.
func (c *CacheState) IncrementBalances(balances map[common.Address]uint256.Int) []types.AddressTransition {
	addrs := make([]common.Address, 0, len(balances))
	for addr := range balances {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})

	transitions := make([]types.AddressTransition, 0, len(addrs))
	for _, addr := range addrs {
		amount := balances[addr]
		var transition *types.TransitionAccount
		found := c.accounts.update(addr, func(entry *CacheAccount) {
			transition = entry.IncrementBalance(amount)
		})
		if !found {
			panic(newContractViolation(addr))
		}
		if transition != nil {
			c.metrics.observeTransition(transition.Status)
			transitions = append(transitions, types.AddressTransition{Address: addr, Transition: transition})
		}
	}
	return transitions
}

// DrainBalances sets the balances of the provided cached accounts to zero, e.g. for irregular state changes. Returns
// the total amount drained and a transition per address, in the order provided. Every address must be cached.
func (c *CacheState) DrainBalances(addrs []common.Address) (uint256.Int, []types.AddressTransition) {
	var total uint256.Int
	transitions := make([]types.AddressTransition, 0, len(addrs))
	for _, addr := range addrs {
		var (
			drained    uint256.Int
			transition *types.TransitionAccount
		)
		found := c.accounts.update(addr, func(entry *CacheAccount) {
			drained, transition = entry.DrainBalance()
		})
		if !found {
			panic(newContractViolation(addr))
		}
		total.Add(&total, &drained)
		c.metrics.observeTransition(transition.Status)
		transitions = append(transitions, types.AddressTransition{Address: addr, Transition: transition})
	}
	return total, transitions
}
