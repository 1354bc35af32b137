package loader

import (
	"encoding/json"
	"math/big"
	"os"

	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/common/math"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrBalanceOverflow indicates an allocated balance does not fit in 256 bits.
var ErrBalanceOverflow = errors.New("balance exceeds 256 bits")

// Alloc is a genesis-style prestate allocation, mapping each address to the account it holds.
type Alloc map[common.Address]AllocAccount

// AllocAccount describes an account of an Alloc. Balances and nonces may be given in hex or decimal.
type AllocAccount struct {
	// Balance describes the account balance. A missing balance is zero.
	Balance *math.HexOrDecimal256 `json:"balance"`

	// Nonce describes the account nonce.
	Nonce math.HexOrDecimal64 `json:"nonce,omitempty"`

	// Code describes the deployed bytecode.
	Code hexutil.Bytes `json:"code,omitempty"`

	// Storage describes the storage slots of the account.
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// ReadAllocFile reads an Alloc from a JSON file.
func ReadAllocFile(path string) (Alloc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var alloc Alloc
	if err = json.Unmarshal(b, &alloc); err != nil {
		return nil, errors.Wrapf(err, "could not parse allocation file %v", path)
	}
	return alloc, nil
}

// AccountInfo converts the allocation into an AccountInfo, hashing its bytecode if any is present.
func (a *AllocAccount) AccountInfo() (types.AccountInfo, error) {
	info := types.NewEmptyAccountInfo()
	info.Nonce = uint64(a.Nonce)

	if a.Balance != nil {
		balance, overflow := uint256.FromBig((*big.Int)(a.Balance))
		if overflow || (*big.Int)(a.Balance).Sign() < 0 {
			return types.AccountInfo{}, errors.WithStack(ErrBalanceOverflow)
		}
		info.Balance = *balance
	}

	if len(a.Code) > 0 {
		info.Code = common.CopyBytes(a.Code)
		info.CodeHash = crypto.Keccak256Hash(a.Code)
	}
	return info, nil
}

// PlainStorage converts the allocated storage into cache storage. Zero slots are dropped.
func (a *AllocAccount) PlainStorage() types.PlainStorage {
	storage := make(types.PlainStorage, len(a.Storage))
	for slot, value := range a.Storage {
		if value == (common.Hash{}) {
			continue
		}
		storage[slot] = *new(uint256.Int).SetBytes(value[:])
	}
	return storage
}
