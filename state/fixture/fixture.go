// Package fixture reads execution batches from JSON files and renders transitions back to JSON, so that recorded
// interpreter output can be replayed against a cache outside of a running node.
package fixture

import (
	"bytes"
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
	"golang.org/x/exp/slices"
)

// ErrValueOverflow indicates a balance or storage value does not fit in 256 bits.
var ErrValueOverflow = errors.New("value exceeds 256 bits")

// Fixture describes a recorded sequence of execution batches.
type Fixture struct {
	// StateClear optionally overrides the state clear flag of the cache before the batches are applied.
	StateClear *bool `json:"stateClear,omitempty"`

	// Batches describes the execution batches, in the order they are applied.
	Batches [][]Account `json:"batches"`

	// BalanceIncrements describes balance increments (e.g. block rewards) applied once, after the last batch.
	BalanceIncrements map[common.Address]*math.HexOrDecimal256 `json:"balanceIncrements,omitempty"`
}

// Account describes the execution result of a single account in a batch.
type Account struct {
	Address        common.Address       `json:"address"`
	Touched        bool                 `json:"touched"`
	Created        bool                 `json:"created,omitempty"`
	SelfDestructed bool                 `json:"selfDestructed,omitempty"`
	Info           Info                 `json:"info"`
	Storage        map[common.Hash]Slot `json:"storage,omitempty"`
}

// Info describes the JSON encoding of an account info. A zero code hash is derived from the code.
type Info struct {
	Balance  *math.HexOrDecimal256 `json:"balance"`
	Nonce    math.HexOrDecimal64   `json:"nonce"`
	CodeHash common.Hash           `json:"codeHash"`
	Code     hexutil.Bytes         `json:"code,omitempty"`
}

// Slot describes the JSON encoding of a storage slot with its value before and after a change.
type Slot struct {
	Original *math.HexOrDecimal256 `json:"original"`
	Present  *math.HexOrDecimal256 `json:"present"`
}

// ReadFile reads a Fixture from a JSON file.
func ReadFile(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var fixture Fixture
	if err = json.Unmarshal(b, &fixture); err != nil {
		return nil, errors.Wrapf(err, "could not parse fixture %v", path)
	}
	return &fixture, nil
}

// toUint256 converts a JSON value into a uint256.Int. A nil value is zero.
func toUint256(value *math.HexOrDecimal256) (uint256.Int, error) {
	if value == nil {
		return uint256.Int{}, nil
	}
	b := (*big.Int)(value)
	converted, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return uint256.Int{}, errors.WithStack(ErrValueOverflow)
	}
	return *converted, nil
}

// fromUint256 converts a uint256.Int into a JSON value.
func fromUint256(value uint256.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(value.ToBig())
}

// AccountInfo converts the JSON info into an AccountInfo.
func (i *Info) AccountInfo() (types.AccountInfo, error) {
	balance, err := toUint256(i.Balance)
	if err != nil {
		return types.AccountInfo{}, err
	}

	info := types.AccountInfo{
		Balance:  balance,
		Nonce:    uint64(i.Nonce),
		CodeHash: i.CodeHash,
	}
	if len(i.Code) > 0 {
		info.Code = common.CopyBytes(i.Code)
		if info.CodeHash == (common.Hash{}) {
			info.CodeHash = crypto.Keccak256Hash(i.Code)
		}
	}
	if info.CodeHash == (common.Hash{}) {
		info.CodeHash = types.EmptyCodeHash
	}
	return info, nil
}

// newInfo converts an AccountInfo into its JSON encoding, or nil if info is nil.
func newInfo(info *types.AccountInfo) *Info {
	if info == nil {
		return nil
	}
	return &Info{
		Balance:  fromUint256(info.Balance),
		Nonce:    math.HexOrDecimal64(info.Nonce),
		CodeHash: info.CodeHash,
		Code:     info.Code,
	}
}

// EvmAccount converts the JSON account into an EvmAccount.
func (a *Account) EvmAccount() (*types.EvmAccount, error) {
	info, err := a.Info.AccountInfo()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid info for %v", a.Address.Hex())
	}

	account := types.NewEvmAccount(a.Address, info)
	if a.Touched {
		account.MarkTouch()
	}
	if a.Created {
		account.MarkCreated()
	}
	if a.SelfDestructed {
		account.MarkSelfDestruct()
	}

	for key, slot := range a.Storage {
		original, err := toUint256(slot.Original)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid slot %v of %v", key.Hex(), a.Address.Hex())
		}
		present, err := toUint256(slot.Present)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid slot %v of %v", key.Hex(), a.Address.Hex())
		}
		account.SetStorage(key, original, present)
	}
	return account, nil
}

// EvmStates converts every batch of the fixture into an EvmState, keeping the order of batches and of the accounts
// within them. An address may only appear once per batch.
func (f *Fixture) EvmStates() ([]types.EvmState, error) {
	states := make([]types.EvmState, 0, len(f.Batches))
	for i, batch := range f.Batches {
		seen := make(map[common.Address]struct{}, len(batch))
		state := make(types.EvmState, 0, len(batch))
		for _, a := range batch {
			if _, ok := seen[a.Address]; ok {
				return nil, errors.Errorf("address %v appears more than once in batch %d", a.Address.Hex(), i)
			}
			seen[a.Address] = struct{}{}

			account, err := a.EvmAccount()
			if err != nil {
				return nil, errors.Wrapf(err, "invalid batch %d", i)
			}
			state = append(state, account)
		}
		states = append(states, state)
	}
	return states, nil
}

// Increments converts the balance increments of the fixture.
func (f *Fixture) Increments() (map[common.Address]uint256.Int, error) {
	increments := make(map[common.Address]uint256.Int, len(f.BalanceIncrements))
	for addr, value := range f.BalanceIncrements {
		amount, err := toUint256(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid balance increment for %v", addr.Hex())
		}
		increments[addr] = amount
	}
	return increments, nil
}

// Addresses returns every address referenced by the fixture, in ascending order. These are the addresses a loader
// must insert into the cache before the fixture is applied.
func (f *Fixture) Addresses() []common.Address {
	unique := make(map[common.Address]struct{})
	for _, batch := range f.Batches {
		for _, a := range batch {
			unique[a.Address] = struct{}{}
		}
	}
	for addr := range f.BalanceIncrements {
		unique[addr] = struct{}{}
	}

	addrs := make([]common.Address, 0, len(unique))
	for addr := range unique {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return addrs
}
