package cache

import (
	"bytes"

	"github.com/crytic/cachestate/state/suffixhash"
	"github.com/crytic/medusa-geth/common"
	"github.com/puzpuzpuz/xsync/v4"
)

// ContractStore is a concurrent, content-addressed mapping from code hash to bytecode. Bytecode is immutable, so the
// first insert for a hash wins and later inserts for the same hash are no-ops.
type ContractStore struct {
	contracts *xsync.MapOf[common.Hash, []byte]
}

// NewContractStore creates an empty ContractStore. Code hashes are keccak outputs, so entries are placed by the
// suffix of the hash rather than by rehashing it.
func NewContractStore() *ContractStore {
	return &ContractStore{
		contracts: xsync.NewMapOfWithHasher[common.Hash, []byte](codeHashHasher),
	}
}

// codeHashHasher is the map hasher for code hashes. The seed is ignored.
func codeHashHasher(codeHash common.Hash, _ uint64) uint64 {
	return suffixhash.Hash(codeHash)
}

// InsertIfAbsent stores code under codeHash unless an entry already exists. Returns true if code was inserted.
func (s *ContractStore) InsertIfAbsent(codeHash common.Hash, code []byte) bool {
	if code == nil {
		code = []byte{}
	}
	_, loaded := s.contracts.LoadOrStore(codeHash, bytes.Clone(code))
	return !loaded
}

// Get returns the bytecode stored under codeHash.
func (s *ContractStore) Get(codeHash common.Hash) ([]byte, bool) {
	code, ok := s.contracts.Load(codeHash)
	if !ok {
		return nil, false
	}
	return bytes.Clone(code), true
}

// Contains returns true if bytecode is stored under codeHash.
func (s *ContractStore) Contains(codeHash common.Hash) bool {
	_, ok := s.contracts.Load(codeHash)
	return ok
}

// Len returns the number of stored contracts.
func (s *ContractStore) Len() int {
	return s.contracts.Size()
}

// Range calls fn for each stored contract until fn returns false. The bytecode passed to fn must not be modified.
func (s *ContractStore) Range(fn func(codeHash common.Hash, code []byte) bool) {
	s.contracts.Range(fn)
}
