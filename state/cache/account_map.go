package cache

import (
	"iter"
	"math/bits"
	"runtime"
	"sync"

	"github.com/crytic/cachestate/state/suffixhash"
	"github.com/crytic/medusa-geth/common"
)

// accountShard is a single lock-protected partition of the account map.
type accountShard struct {
	lock     sync.RWMutex
	accounts map[common.Address]*CacheAccount
}

// accountMap is a concurrent map from address to cache entry. Addresses are spread over a power-of-two number of
// shards using their suffix hash, so operations on addresses in different shards never contend.
type accountMap struct {
	shards []accountShard
	mask   uint64
}

// defaultShardCount returns four shards per available CPU.
func defaultShardCount() int {
	return runtime.GOMAXPROCS(0) * 4
}

// newAccountMap creates an accountMap with shardCount rounded up to a power of two. A non-positive shardCount selects
// defaultShardCount.
func newAccountMap(shardCount int) *accountMap {
	if shardCount <= 0 {
		shardCount = defaultShardCount()
	}
	n := 1
	if shardCount > 1 {
		n = 1 << bits.Len(uint(shardCount-1))
	}

	m := &accountMap{
		shards: make([]accountShard, n),
		mask:   uint64(n - 1),
	}
	for i := range m.shards {
		m.shards[i].accounts = make(map[common.Address]*CacheAccount)
	}
	return m
}

// shardCount returns the number of shards.
func (m *accountMap) shardCount() int {
	return len(m.shards)
}

// shardFor returns the shard responsible for addr.
func (m *accountMap) shardFor(addr common.Address) *accountShard {
	return &m.shards[suffixhash.Address(addr)&m.mask]
}

// insert stores entry for addr, replacing any existing entry. Returns true if an entry was replaced.
func (m *accountMap) insert(addr common.Address, entry *CacheAccount) bool {
	shard := m.shardFor(addr)
	shard.lock.Lock()
	defer shard.lock.Unlock()

	_, replaced := shard.accounts[addr]
	shard.accounts[addr] = entry
	return replaced
}

// update runs fn on the entry for addr while holding the shard exclusively. Returns false if no entry exists, in
// which case fn is not called.
func (m *accountMap) update(addr common.Address, fn func(entry *CacheAccount)) bool {
	shard := m.shardFor(addr)
	shard.lock.Lock()
	defer shard.lock.Unlock()

	entry, ok := shard.accounts[addr]
	if !ok {
		return false
	}
	fn(entry)
	return true
}

// view runs fn on the entry for addr while holding the shard for reading. Returns false if no entry exists.
func (m *accountMap) view(addr common.Address, fn func(entry *CacheAccount)) bool {
	shard := m.shardFor(addr)
	shard.lock.RLock()
	defer shard.lock.RUnlock()

	entry, ok := shard.accounts[addr]
	if !ok {
		return false
	}
	fn(entry)
	return true
}

// len returns the number of entries across all shards.
func (m *accountMap) len() int {
	total := 0
	for i := range m.shards {
		shard := &m.shards[i]
		shard.lock.RLock()
		total += len(shard.accounts)
		shard.lock.RUnlock()
	}
	return total
}

// addressValue pairs an address with a value derived from its entry.
type addressValue[V any] struct {
	addr  common.Address
	value V
}

// collect returns an iterator over the values produced by fn for every entry. Each shard is snapshotted under its
// read lock before its values are yielded, so the consumer may mutate the map while iterating.
func collect[V any](m *accountMap, fn func(entry *CacheAccount) (V, bool)) iter.Seq2[common.Address, V] {
	return func(yield func(common.Address, V) bool) {
		for i := range m.shards {
			shard := &m.shards[i]
			shard.lock.RLock()
			snapshot := make([]addressValue[V], 0, len(shard.accounts))
			for addr, entry := range shard.accounts {
				if value, ok := fn(entry); ok {
					snapshot = append(snapshot, addressValue[V]{addr, value})
				}
			}
			shard.lock.RUnlock()

			for _, p := range snapshot {
				if !yield(p.addr, p.value) {
					return
				}
			}
		}
	}
}
