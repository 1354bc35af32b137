package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/crytic/cachestate/logging"
	"github.com/crytic/cachestate/state/cache"
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/math"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"golang.org/x/exp/slices"
)

// ErrNotFound indicates the requested account or contract is not present in the store.
var ErrNotFound = errors.New("not found in prestate store")

var (
	accountsBucket = []byte("accounts")
	storageBucket  = []byte("storage")
	codeBucket     = []byte("code")
)

// storedAccount is the JSON encoding of an account in the accounts bucket. Bytecode is kept in the code bucket.
type storedAccount struct {
	Balance  *math.HexOrDecimal256 `json:"balance"`
	Nonce    math.HexOrDecimal64   `json:"nonce"`
	CodeHash common.Hash           `json:"codeHash"`
}

// ContractInserter is implemented by caches which also accept bytecode from the loader.
type ContractInserter interface {
	InsertContract(codeHash common.Hash, code []byte) bool
}

// BoltStore is an on-disk prestate backed by bbolt. Accounts are JSON encoded under their address, storage slots are
// stored raw under the address followed by the slot, and bytecode raw under its code hash.
type BoltStore struct {
	db     *bbolt.DB
	logger *logging.Logger

	// closed is closed by the first call to Close, stopping the context watcher.
	closed    chan struct{}
	closeOnce sync.Once
}

// OpenBoltStore opens (or creates) a BoltStore at path. The store is closed once ctx is cancelled.
func OpenBoltStore(ctx context.Context, path string, timeout time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open prestate database %v", path)
	}

	// Create the buckets if they do not exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{accountsBucket, storageBucket, codeBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	s := &BoltStore{
		db:     db,
		logger: logging.GlobalLogger.NewSubLogger("module", logging.LOADER_SERVICE),
		closed: make(chan struct{}),
	}

	// Close the database if the context is cancelled before the store is closed
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				s.logger.Error("Failed to close prestate database", err)
			}
		case <-s.closed:
		}
	}()
	return s, nil
}

// Close closes the underlying database. Closing an already closed store is a no-op.
func (s *BoltStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.WithStack(s.db.Close())
		close(s.closed)
	})
	return err
}

// contextError returns the context's error in place of err once ctx is done, as the database may have been closed
// by the context watcher mid-load.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.WithStack(ctxErr)
	}
	return err
}

// storageKey returns the key of a storage slot in the storage bucket.
func storageKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, common.AddressLength+common.HashLength)
	key = append(key, addr[:]...)
	return append(key, slot[:]...)
}

// PutAccount writes an account, its storage and (if inlined) its bytecode. Existing storage of the account is
// replaced. Zero storage values are not stored.
func (s *BoltStore) PutAccount(addr common.Address, info types.AccountInfo, storage types.PlainStorage) error {
	encoded, err := json.Marshal(storedAccount{
		Balance:  (*math.HexOrDecimal256)(info.Balance.ToBig()),
		Nonce:    math.HexOrDecimal64(info.Nonce),
		CodeHash: info.CodeHash,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(accountsBucket).Put(addr[:], encoded); err != nil {
			return err
		}

		// Drop any storage previously written for the account
		storageB := tx.Bucket(storageBucket)
		c := storageB.Cursor()
		for k, _ := c.Seek(addr[:]); k != nil && bytes.HasPrefix(k, addr[:]); k, _ = c.Seek(addr[:]) {
			if err := c.Delete(); err != nil {
				return err
			}
		}

		for slot, value := range storage {
			if value.IsZero() {
				continue
			}
			word := value.Bytes32()
			if err := storageB.Put(storageKey(addr, slot), word[:]); err != nil {
				return err
			}
		}

		if info.Code != nil && info.HasCode() {
			return tx.Bucket(codeBucket).Put(info.CodeHash[:], info.Code)
		}
		return nil
	})
	return errors.Wrapf(err, "could not write account %v", addr.Hex())
}

// Account reads an account and its storage. Returns ErrNotFound if the address is not in the store.
func (s *BoltStore) Account(addr common.Address) (types.AccountInfo, types.PlainStorage, error) {
	var (
		info    types.AccountInfo
		storage = make(types.PlainStorage)
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(accountsBucket).Get(addr[:])
		if data == nil {
			return errors.WithStack(ErrNotFound)
		}

		var stored storedAccount
		if err := json.Unmarshal(data, &stored); err != nil {
			return errors.Wrapf(err, "could not decode account %v", addr.Hex())
		}
		info = types.AccountInfo{
			Nonce:    uint64(stored.Nonce),
			CodeHash: stored.CodeHash,
		}
		if stored.Balance != nil {
			balance, overflow := uint256.FromBig((*big.Int)(stored.Balance))
			if overflow {
				return errors.WithStack(ErrBalanceOverflow)
			}
			info.Balance = *balance
		}

		c := tx.Bucket(storageBucket).Cursor()
		for k, v := c.Seek(addr[:]); k != nil && bytes.HasPrefix(k, addr[:]); k, v = c.Next() {
			storage[common.BytesToHash(k[common.AddressLength:])] = *new(uint256.Int).SetBytes(v)
		}
		return nil
	})
	if err != nil {
		return types.AccountInfo{}, nil, err
	}
	return info, storage, nil
}

// Code returns the bytecode stored under codeHash. Returns ErrNotFound if there is none.
func (s *BoltStore) Code(codeHash common.Hash) ([]byte, error) {
	var code []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(codeBucket).Get(codeHash[:])
		if data == nil {
			return errors.WithStack(ErrNotFound)
		}
		// Values are only valid for the lifetime of the transaction
		code = bytes.Clone(data)
		return nil
	})
	return code, err
}

// Addresses returns every address in the store, in ascending order.
func (s *BoltStore) Addresses() ([]common.Address, error) {
	addrs := make([]common.Address, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(k, _ []byte) error {
			addrs = append(addrs, common.BytesToAddress(k))
			return nil
		})
	})
	return addrs, errors.WithStack(err)
}

// Import writes every account of alloc into the store, in ascending address order. Returns the number of accounts
// written.
func (s *BoltStore) Import(ctx context.Context, alloc Alloc) (int, error) {
	addrs := make([]common.Address, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})

	for i, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return i, errors.WithStack(err)
		}
		account := alloc[addr]
		info, err := account.AccountInfo()
		if err != nil {
			return i, errors.Wrapf(err, "invalid allocation for %v", addr.Hex())
		}
		if err = s.PutAccount(addr, info, account.PlainStorage()); err != nil {
			return i, err
		}
	}

	s.logger.Info("Imported ", len(addrs), " accounts into the prestate database")
	return len(addrs), nil
}

// LoadInto inserts each address into inserter exactly once: addresses in the store are inserted with their storage
// and addresses missing from it are inserted as not existing. If inserter also implements ContractInserter, the
// bytecode of loaded contracts is inserted too.
func (s *BoltStore) LoadInto(ctx context.Context, inserter cache.AccountInserter, addrs []common.Address) error {
	contracts, withContracts := inserter.(ContractInserter)

	var loaded, missing int
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		info, storage, err := s.Account(addr)
		if errors.Is(err, ErrNotFound) {
			inserter.InsertNotExisting(addr)
			missing++
			continue
		} else if err != nil {
			return contextError(ctx, err)
		}

		if withContracts && info.HasCode() {
			code, err := s.Code(info.CodeHash)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return contextError(ctx, err)
			}
			if err == nil {
				info.Code = code
				contracts.InsertContract(info.CodeHash, code)
			} else {
				s.logger.Warn("No bytecode stored for code hash ", info.CodeHash.Hex(), " of ", addr.Hex())
			}
		}

		inserter.InsertAccountWithStorage(addr, info, storage)
		loaded++
	}

	s.logger.Debug("Loaded prestate", logging.StructuredLogInfo{"loaded": loaded, "missing": missing})
	return nil
}

// LoadAll inserts every account in the store into inserter.
func (s *BoltStore) LoadAll(ctx context.Context, inserter cache.AccountInserter) error {
	addrs, err := s.Addresses()
	if err != nil {
		return contextError(ctx, err)
	}
	return s.LoadInto(ctx, inserter, addrs)
}
