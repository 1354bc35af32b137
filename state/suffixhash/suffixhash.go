// Package suffixhash provides a hash function for keys which are already uniformly distributed, such as account
// addresses and 32-byte hashes. Rather than mixing the key again, it reinterprets the key's last eight bytes.
package suffixhash

import (
	"encoding/binary"

	"github.com/crytic/medusa-geth/common"
)

// MinKeyLength is the smallest key length Sum64 accepts.
const MinKeyLength = 8

// Sum64 returns the big-endian integer formed by the last eight bytes of key. Keys shorter than MinKeyLength cause a
// panic: they are never produced by callers, which only hash addresses and hashes.
func Sum64(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-MinKeyLength:])
}

// Address hashes an account address.
func Address(addr common.Address) uint64 {
	return Sum64(addr[:])
}

// Hash hashes a 32-byte hash such as a code hash or storage key.
func Hash(hash common.Hash) uint64 {
	return Sum64(hash[:])
}
