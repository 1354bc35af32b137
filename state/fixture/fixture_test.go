package fixture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/cachestate/state/cache"
	"github.com/crytic/cachestate/state/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFixture describes a change of a funded account and a contract creation, followed by a self-destruct.
const testFixture = `{
	"batches": [
		[
			{
				"address": "0x00000000000000000000000000000000000000aa",
				"touched": true,
				"info": {"balance": "0x5", "nonce": "0x1"},
				"storage": {
					"0x0000000000000000000000000000000000000000000000000000000000000001": {"original": "0x0", "present": "0x1"}
				}
			},
			{
				"address": "0x00000000000000000000000000000000000000bb",
				"touched": true,
				"created": true,
				"info": {"balance": "0", "nonce": "1", "code": "0x600060005500"}
			}
		],
		[
			{"address": "0x00000000000000000000000000000000000000bb", "touched": true, "selfDestructed": true, "info": {"balance": "0"}}
		]
	],
	"balanceIncrements": {"0x00000000000000000000000000000000000000cc": "0x2"}
}`

var (
	fundedAddr  = common.HexToAddress("0xaa")
	createdAddr = common.HexToAddress("0xbb")
	rewardAddr  = common.HexToAddress("0xcc")
)

// readTestFixture writes testFixture to a temporary file and reads it back.
func readTestFixture(t *testing.T) *Fixture {
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0644))
	fixture, err := ReadFile(path)
	require.NoError(t, err)
	return fixture
}

// TestFixtureEvmStates checks the conversion of batches into execution results.
func TestFixtureEvmStates(t *testing.T) {
	fixture := readTestFixture(t)
	states, err := fixture.EvmStates()
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Len(t, states[0], 2)

	funded := states[0][0]
	assert.Equal(t, fundedAddr, funded.Address)
	assert.True(t, funded.IsTouched())
	assert.False(t, funded.IsCreated())
	assert.Equal(t, *uint256.NewInt(5), funded.Info.Balance)
	assert.Equal(t, types.EmptyCodeHash, funded.Info.CodeHash)
	assert.Len(t, funded.ChangedStorage(), 1)

	created := states[0][1]
	assert.True(t, created.IsCreated())
	assert.Equal(t, crypto.Keccak256Hash(common.FromHex("0x600060005500")), created.Info.CodeHash)

	assert.True(t, states[1][0].IsSelfDestructed())

	assert.Equal(t, []common.Address{fundedAddr, createdAddr, rewardAddr}, fixture.Addresses())

	increments, err := fixture.Increments()
	require.NoError(t, err)
	assert.Equal(t, map[common.Address]uint256.Int{rewardAddr: *uint256.NewInt(2)}, increments)
}

// TestFixtureDuplicateAddress ensures an address may only appear once per batch.
func TestFixtureDuplicateAddress(t *testing.T) {
	fixture := &Fixture{Batches: [][]Account{{{Address: fundedAddr}, {Address: fundedAddr}}}}
	_, err := fixture.EvmStates()
	assert.Error(t, err)
}

// TestFixtureAppliedTransitions applies the fixture to a cache and renders the transitions.
func TestFixtureAppliedTransitions(t *testing.T) {
	fixture := readTestFixture(t)
	states, err := fixture.EvmStates()
	require.NoError(t, err)

	c := cache.NewCacheState(true)
	c.InsertAccount(fundedAddr, types.AccountInfo{Balance: *uint256.NewInt(10), CodeHash: types.EmptyCodeHash})
	c.InsertNotExisting(createdAddr)

	first := NewTransitions(c.ApplyEvmState(states[0]))
	require.Len(t, first, 2)
	assert.Equal(t, types.AccountStatusInMemoryChange, first[0].Status)
	require.NotNil(t, first[0].PreviousInfo)
	require.Contains(t, first[0].Storage, common.HexToHash("0x01"))

	second := NewTransitions(c.ApplyEvmState(states[1]))
	require.Len(t, second, 1)
	assert.Nil(t, second[0].Info)
	assert.True(t, second[0].StorageWasDestroyed)

	b, err := json.Marshal(second[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"Destroyed"`)
	assert.Contains(t, string(b), `"previousStatus":"InMemoryChange"`)

	for addr, account := range c.TrieAccounts() {
		plain := NewPlainAccount(account)
		assert.Equal(t, fundedAddr, addr)
		assert.Len(t, plain.Storage, 1)
	}
}

// TestReadFileInvalid ensures malformed fixtures surface an error.
func TestReadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"batches": [[{"address": 5}]]}`), 0644))
	_, err := ReadFile(path)
	assert.Error(t, err)
}
