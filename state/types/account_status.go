package types

import "fmt"

// AccountStatus describes where an account cache entry is in its lifecycle. The status encodes whether the account
// has ever existed, whether it currently exists, and whether it was created or destroyed during the current session.
type AccountStatus uint8

const (
	// AccountStatusLoadedNotExisting indicates the account was queried from the database and confirmed absent.
	AccountStatusLoadedNotExisting AccountStatus = iota
	// AccountStatusLoaded indicates the account was loaded from the database and is not empty.
	AccountStatusLoaded
	// AccountStatusLoadedEmptyEIP161 indicates the account was loaded from the database and is empty, which makes it
	// a candidate for removal once EIP-161 state clearing applies.
	AccountStatusLoadedEmptyEIP161
	// AccountStatusInMemoryChange indicates the account is fully known in memory: it was created, or changed while its
	// storage is known not to live in the database.
	AccountStatusInMemoryChange
	// AccountStatusChanged indicates a loaded account was changed and some of its storage may still live in the
	// database.
	AccountStatusChanged
	// AccountStatusDestroyed indicates the account was destroyed (self-destructed or cleared as empty).
	AccountStatusDestroyed
	// AccountStatusDestroyedChanged indicates the account was destroyed and later recreated or changed.
	AccountStatusDestroyedChanged
	// AccountStatusDestroyedAgain indicates the account was destroyed more than once.
	AccountStatusDestroyedAgain
)

// IsNotModified returns true if the account has only been loaded and not modified in memory.
func (s AccountStatus) IsNotModified() bool {
	switch s {
	case AccountStatusLoadedNotExisting, AccountStatusLoaded, AccountStatusLoadedEmptyEIP161:
		return true
	default:
		return false
	}
}

// WasDestroyed returns true if the account was destroyed at some point during the session.
func (s AccountStatus) WasDestroyed() bool {
	switch s {
	case AccountStatusDestroyed, AccountStatusDestroyedChanged, AccountStatusDestroyedAgain:
		return true
	default:
		return false
	}
}

// IsStorageKnown returns true if every storage slot of the account is known in memory, so the database never needs
// to be consulted for it.
func (s AccountStatus) IsStorageKnown() bool {
	switch s {
	case AccountStatusLoadedNotExisting, AccountStatusInMemoryChange, AccountStatusDestroyed,
		AccountStatusDestroyedChanged, AccountStatusDestroyedAgain:
		return true
	default:
		return false
	}
}

// IsModifiedAndNotDestroyed returns true if the account was changed in memory without ever being destroyed.
func (s AccountStatus) IsModifiedAndNotDestroyed() bool {
	return s == AccountStatusChanged || s == AccountStatusInMemoryChange
}

// HasAccount returns true if an entry with this status carries a materialized account.
func (s AccountStatus) HasAccount() bool {
	switch s {
	case AccountStatusLoaded, AccountStatusLoadedEmptyEIP161, AccountStatusInMemoryChange, AccountStatusChanged,
		AccountStatusDestroyedChanged:
		return true
	default:
		return false
	}
}

// String returns a human-readable name for the status.
func (s AccountStatus) String() string {
	switch s {
	case AccountStatusLoadedNotExisting:
		return "LoadedNotExisting"
	case AccountStatusLoaded:
		return "Loaded"
	case AccountStatusLoadedEmptyEIP161:
		return "LoadedEmptyEIP161"
	case AccountStatusInMemoryChange:
		return "InMemoryChange"
	case AccountStatusChanged:
		return "Changed"
	case AccountStatusDestroyed:
		return "Destroyed"
	case AccountStatusDestroyedChanged:
		return "DestroyedChanged"
	case AccountStatusDestroyedAgain:
		return "DestroyedAgain"
	default:
		return fmt.Sprintf("AccountStatus(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler so statuses render by name in JSON output.
func (s AccountStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
