package cache

import (
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// CacheAccount is a single entry of the account cache. It pairs a lifecycle status with the materialized account,
// which is present exactly when the status denotes an existing account (see types.AccountStatus.HasAccount). Both
// fields are private so that every mutation goes through a lifecycle operation which keeps them consistent.
type CacheAccount struct {
	// account describes the materialized account, or nil if the account does not exist.
	account *types.PlainAccount

	// status describes where the entry is in its lifecycle.
	status types.AccountStatus
}

// NewLoadedCacheAccount creates an entry for a non-empty account loaded from the database.
func NewLoadedCacheAccount(info types.AccountInfo, storage types.PlainStorage) *CacheAccount {
	return &CacheAccount{
		account: types.NewPlainAccount(info, storage),
		status:  types.AccountStatusLoaded,
	}
}

// NewLoadedEmptyEIP161CacheAccount creates an entry for an empty account loaded from the database.
func NewLoadedEmptyEIP161CacheAccount(storage types.PlainStorage) *CacheAccount {
	return &CacheAccount{
		account: types.NewEmptyPlainAccountWithStorage(storage),
		status:  types.AccountStatusLoadedEmptyEIP161,
	}
}

// NewLoadedNotExistingCacheAccount creates an entry for an account confirmed absent from the database.
func NewLoadedNotExistingCacheAccount() *CacheAccount {
	return &CacheAccount{status: types.AccountStatusLoadedNotExisting}
}

// NewNewlyCreatedCacheAccount creates an entry for an account created in memory.
func NewNewlyCreatedCacheAccount(info types.AccountInfo, storage types.PlainStorage) *CacheAccount {
	return &CacheAccount{
		account: types.NewPlainAccount(info, storage),
		status:  types.AccountStatusInMemoryChange,
	}
}

// NewDestroyedCacheAccount creates an entry for a destroyed account.
func NewDestroyedCacheAccount() *CacheAccount {
	return &CacheAccount{status: types.AccountStatusDestroyed}
}

// NewChangedCacheAccount creates an entry for a loaded account which was changed.
func NewChangedCacheAccount(info types.AccountInfo, storage types.PlainStorage) *CacheAccount {
	return &CacheAccount{
		account: types.NewPlainAccount(info, storage),
		status:  types.AccountStatusChanged,
	}
}

// Status returns the lifecycle status of the entry.
func (c *CacheAccount) Status() types.AccountStatus {
	return c.status
}

// IsSome returns true if the entry currently holds an existing account.
func (c *CacheAccount) IsSome() bool {
	return c.account != nil
}

// AccountInfo returns a copy of the account info, or nil if the account does not exist.
func (c *CacheAccount) AccountInfo() *types.AccountInfo {
	if c.account == nil {
		return nil
	}
	info := c.account.Info.Copy()
	return &info
}

// StorageSlot returns the cached value of a storage slot. The boolean is false if the account does not exist or the
// slot is not cached.
func (c *CacheAccount) StorageSlot(slot common.Hash) (uint256.Int, bool) {
	if c.account == nil {
		return uint256.Int{}, false
	}
	value, ok := c.account.Storage[slot]
	return value, ok
}

// Components returns a copy of the materialized account (nil if absent) along with the status.
func (c *CacheAccount) Components() (*types.PlainAccount, types.AccountStatus) {
	if c.account == nil {
		return nil, c.status
	}
	account := c.account.Copy()
	return &account, c.status
}

// takeInfo removes the materialized account and returns its info, or nil if there was none.
func (c *CacheAccount) takeInfo() *types.AccountInfo {
	if c.account == nil {
		return nil
	}
	info := c.account.Info
	c.account = nil
	return &info
}

// mergedStorage returns the current storage of the entry with the present values of changes applied on top.
func (c *CacheAccount) mergedStorage(changes types.StorageWithOriginalValues) types.PlainStorage {
	var storage types.PlainStorage
	if c.account != nil {
		storage = c.account.Storage
	}
	if storage == nil {
		storage = make(types.PlainStorage, len(changes))
	}
	for key, slot := range changes {
		storage[key] = slot.PresentValue
	}
	return storage
}

// changedStatus returns the status an entry moves to when its info or storage changes without it being created or
// destroyed.
func (c *CacheAccount) changedStatus(previousInfo *types.AccountInfo) types.AccountStatus {
	switch c.status {
	case types.AccountStatusLoaded:
		// Accounts without code have no storage in the database, so they are fully known in memory
		if previousInfo != nil && !previousInfo.HasCode() {
			return types.AccountStatusInMemoryChange
		}
		return types.AccountStatusChanged
	case types.AccountStatusChanged:
		return types.AccountStatusChanged
	case types.AccountStatusLoadedNotExisting, types.AccountStatusLoadedEmptyEIP161, types.AccountStatusInMemoryChange:
		return types.AccountStatusInMemoryChange
	default:
		// Destroyed, DestroyedChanged and DestroyedAgain
		return types.AccountStatusDestroyedChanged
	}
}

// SelfDestruct marks the account as destroyed and removes it. Returns nil if the account was loaded as not existing,
// as destroying it has no observable effect.
func (c *CacheAccount) SelfDestruct() *types.TransitionAccount {
	previousStatus := c.status
	previousInfo := c.takeInfo()

	if previousStatus == types.AccountStatusLoadedNotExisting {
		return nil
	}

	if previousStatus.WasDestroyed() {
		c.status = types.AccountStatusDestroyedAgain
	} else {
		c.status = types.AccountStatusDestroyed
	}

	return &types.TransitionAccount{
		Info:                nil,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             types.StorageWithOriginalValues{},
		StorageWasDestroyed: true,
	}
}

// NewlyCreated replaces the account with a freshly created one holding info and the present values of storage.
// Creation always yields a transition since the lifecycle status changes.
func (c *CacheAccount) NewlyCreated(info types.AccountInfo, storage types.StorageWithOriginalValues) *types.TransitionAccount {
	previousStatus := c.status
	previousInfo := c.takeInfo()

	if previousStatus.WasDestroyed() {
		c.status = types.AccountStatusDestroyedChanged
	} else {
		c.status = types.AccountStatusInMemoryChange
	}

	c.account = types.NewPlainAccount(info, storage.PresentValues())
	newInfo := info.Copy()

	return &types.TransitionAccount{
		Info:                &newInfo,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             storage,
		StorageWasDestroyed: false,
	}
}

// TouchEmptyEIP161 removes an account which was touched while empty, following EIP-161 state clearing. Returns nil if
// the entry was already non-existent or destroyed, so touching a cleared account again does not emit a transition.
func (c *CacheAccount) TouchEmptyEIP161() *types.TransitionAccount {
	previousStatus := c.status

	switch previousStatus {
	case types.AccountStatusLoadedNotExisting, types.AccountStatusDestroyed, types.AccountStatusDestroyedAgain:
		c.account = nil
		return nil
	case types.AccountStatusDestroyedChanged:
		c.status = types.AccountStatusDestroyedAgain
	default:
		// Loaded, LoadedEmptyEIP161, InMemoryChange and Changed
		c.status = types.AccountStatusDestroyed
	}
	previousInfo := c.takeInfo()

	return &types.TransitionAccount{
		Info:                nil,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             types.StorageWithOriginalValues{},
		StorageWasDestroyed: true,
	}
}

// TouchCreatePreEIP161 persists an account which was touched while empty, as was done before EIP-161. Returns nil
// if the entry already holds an empty account and storage did not change.
func (c *CacheAccount) TouchCreatePreEIP161(storage types.StorageWithOriginalValues) *types.TransitionAccount {
	previousStatus := c.status
	hadNoInfo := c.account != nil && c.account.Info.IsEmpty()
	unchanged := hadNoInfo && len(storage) == 0

	switch previousStatus {
	case types.AccountStatusDestroyed, types.AccountStatusDestroyedAgain:
		c.status = types.AccountStatusDestroyedChanged
	case types.AccountStatusDestroyedChanged:
		if unchanged {
			return nil
		}
	case types.AccountStatusLoadedNotExisting:
		c.status = types.AccountStatusInMemoryChange
	case types.AccountStatusInMemoryChange, types.AccountStatusLoadedEmptyEIP161:
		if unchanged {
			return nil
		}
		c.status = types.AccountStatusInMemoryChange
	default:
		// Loaded and Changed accounts which became empty keep their database-backed status
		var info *types.AccountInfo
		if c.account != nil {
			info = &c.account.Info
		}
		c.status = c.changedStatus(info)
	}

	var previousInfo *types.AccountInfo
	if c.account != nil {
		info := c.account.Info.Copy()
		previousInfo = &info
	}
	c.account = types.NewEmptyPlainAccountWithStorage(c.mergedStorage(storage))
	newInfo := types.NewEmptyAccountInfo()

	return &types.TransitionAccount{
		Info:                &newInfo,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             storage,
		StorageWasDestroyed: false,
	}
}

// Change applies new info and storage changes to the account. It always yields a transition.
func (c *CacheAccount) Change(info types.AccountInfo, storage types.StorageWithOriginalValues) *types.TransitionAccount {
	previousStatus := c.status
	var previousInfo *types.AccountInfo
	if c.account != nil {
		prev := c.account.Info.Copy()
		previousInfo = &prev
	}

	c.status = c.changedStatus(previousInfo)
	c.account = types.NewPlainAccount(info, c.mergedStorage(storage))
	newInfo := info.Copy()

	return &types.TransitionAccount{
		Info:                &newInfo,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             storage,
		StorageWasDestroyed: false,
	}
}

// accountInfoChange applies change to a copy of the account info (an empty info if the account does not exist) and
// stores the result, keeping the storage. Returns the resulting transition.
func (c *CacheAccount) accountInfoChange(change func(info *types.AccountInfo)) *types.TransitionAccount {
	previousStatus := c.status
	previousInfo := c.AccountInfo()

	info := types.NewEmptyAccountInfo()
	if previousInfo != nil {
		info = previousInfo.Copy()
	}
	change(&info)

	c.status = c.changedStatus(previousInfo)
	c.account = types.NewPlainAccount(info, c.mergedStorage(nil))
	newInfo := info.Copy()

	return &types.TransitionAccount{
		Info:                &newInfo,
		Status:              c.status,
		PreviousInfo:        previousInfo,
		PreviousStatus:      previousStatus,
		Storage:             types.StorageWithOriginalValues{},
		StorageWasDestroyed: false,
	}
}

// IncrementBalance adds amount to the balance, saturating at the maximum value. Returns nil if amount is zero, as no
// transition is made.
func (c *CacheAccount) IncrementBalance(amount uint256.Int) *types.TransitionAccount {
	if amount.IsZero() {
		return nil
	}
	return c.accountInfoChange(func(info *types.AccountInfo) {
		if _, overflow := info.Balance.AddOverflow(&info.Balance, &amount); overflow {
			info.Balance.SetAllOne()
		}
	})
}

// DrainBalance sets the balance to zero. Returns the drained amount and the resulting transition.
func (c *CacheAccount) DrainBalance() (uint256.Int, *types.TransitionAccount) {
	var drained uint256.Int
	transition := c.accountInfoChange(func(info *types.AccountInfo) {
		drained = info.Balance
		info.Balance.Clear()
	})
	return drained, transition
}
