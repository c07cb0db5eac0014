package state

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethState "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"
)

// Reader is the subset of ethclient.Client the state database forks from.
type Reader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

type StorageOverride struct {
	Key   common.Hash
	Value common.Hash
}

// Override replaces storage slots of one contract before execution.
type Override struct {
	ContractAddress common.Address
	Storage         []StorageOverride
}

type StorageDiff struct {
	Key         common.Hash
	ValueBefore common.Hash
	ValueAfter  common.Hash
	// Preimage is the hex keccak preimage of Key when the EVM recorded one,
	// e.g. the abi encoded (key, slot) of a mapping entry.
	Preimage string

	seen bool
}

// Changed reports whether execution left the slot with a different value.
func (d StorageDiff) Changed() bool {
	return d.ValueBefore != d.ValueAfter
}

type StateDiff struct {
	Address       common.Address
	BalanceBefore *uint256.Int
	BalanceAfter  *uint256.Int
	NonceSeen     bool
	NonceBefore   uint64
	NonceAfter    uint64
	StorageDiffs  map[common.Hash]StorageDiff
}

// SortedStorageDiffs returns the storage diffs ordered by key.
func (d StateDiff) SortedStorageDiffs() []StorageDiff {
	out := make([]StorageDiff, 0, len(d.StorageDiffs))
	for _, sd := range d.StorageDiffs {
		out = append(out, sd)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key[:], out[j].Key[:]) < 0
	})
	return out
}

// CachingStateDB is a vm.StateDB that reads through to a remote node at a
// fixed block and records every write as a diff against what it read.
type CachingStateDB struct {
	ctx       context.Context
	reader    Reader
	block     *big.Int
	cache     *sync.Map
	diffs     map[common.Address]StateDiff
	preimages map[common.Hash]string
	overrides []Override
	err       error
}

func NewCachingStateDB(ctx context.Context, reader Reader, block *big.Int) *CachingStateDB {
	return &CachingStateDB{
		ctx:       ctx,
		reader:    reader,
		block:     block,
		cache:     &sync.Map{},
		diffs:     make(map[common.Address]StateDiff),
		preimages: make(map[common.Hash]string),
	}
}

// ApplyOverrides seeds storage with overrides. Overridden values are the
// starting point of execution and are not reported as diffs themselves.
func (db *CachingStateDB) ApplyOverrides(overrides []Override) {
	db.overrides = append(db.overrides, overrides...)
	for _, o := range overrides {
		for _, s := range o.Storage {
			db.cache.Store(getStorageCacheKey(o.ContractAddress, s.Key), s.Value)
		}
	}
}

func (db *CachingStateDB) Overrides() []Override {
	return db.overrides
}

// Err returns the first error met while fetching remote state. The vm.StateDB
// interface has no error returns, so reads that fail yield zero values.
func (db *CachingStateDB) Err() error {
	return db.err
}

func (db *CachingStateDB) setErr(what string, err error) {
	if db.err == nil {
		db.err = fmt.Errorf("fetching %s at block %s: %w", what, db.block, err)
	}
}

func (db *CachingStateDB) GetBalance(addr common.Address) *uint256.Int {
	cacheKey := getBalanceCacheKey(addr)
	if balance, ok := db.cache.Load(cacheKey); ok {
		return balance.(*uint256.Int)
	}

	balance, err := db.reader.BalanceAt(db.ctx, addr, db.block)
	if err != nil {
		db.setErr("balance of "+addr.Hex(), err)
		return uint256.NewInt(0)
	}

	balanceU256, _ := uint256.FromBig(balance)
	db.cache.Store(cacheKey, balanceU256)
	return balanceU256
}

func (db *CachingStateDB) GetCode(addr common.Address) []byte {
	cacheKey := getCodeCacheKey(addr)
	if code, ok := db.cache.Load(cacheKey); ok {
		return code.([]byte)
	}

	code, err := db.reader.CodeAt(db.ctx, addr, db.block)
	if err != nil {
		db.setErr("code of "+addr.Hex(), err)
		return nil
	}
	db.cache.Store(cacheKey, code)
	return code
}

func (db *CachingStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	storageKey := getStorageCacheKey(addr, key)
	if value, ok := db.cache.Load(storageKey); ok {
		return value.(common.Hash)
	}

	value, err := db.reader.StorageAt(db.ctx, addr, key, db.block)
	if err != nil {
		db.setErr("storage "+key.Hex()+" of "+addr.Hex(), err)
		return common.Hash{}
	}
	db.cache.Store(storageKey, common.BytesToHash(value))
	return common.BytesToHash(value)
}

func (db *CachingStateDB) GetNonce(addr common.Address) uint64 {
	cacheKey := getNonceCacheKey(addr)
	if nonce, ok := db.cache.Load(cacheKey); ok {
		return nonce.(uint64)
	}

	nonce, err := db.reader.NonceAt(db.ctx, addr, db.block)
	if err != nil {
		db.setErr("nonce of "+addr.Hex(), err)
		return 0
	}
	db.cache.Store(cacheKey, nonce)
	return nonce
}

func (db *CachingStateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	return db.moveBalance(addr, amount, (*uint256.Int).Sub)
}

func (db *CachingStateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	return db.moveBalance(addr, amount, (*uint256.Int).Add)
}

func (db *CachingStateDB) moveBalance(addr common.Address, amount *uint256.Int, op func(z, x, y *uint256.Int) *uint256.Int) uint256.Int {
	stateDiff := db.getStateDiff(addr)

	current := db.GetBalance(addr)
	if stateDiff.BalanceBefore == nil {
		stateDiff.BalanceBefore = new(uint256.Int).Set(current)
	}
	prev := *current
	after := op(new(uint256.Int), current, amount)
	stateDiff.BalanceAfter = after

	db.diffs[addr] = stateDiff
	db.cache.Store(getBalanceCacheKey(addr), after)
	return prev
}

// SetState records the write and returns the previous value.
func (db *CachingStateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	stateDiff := db.getStateDiff(addr)
	storageDiff := stateDiff.getStorageDiff(key)

	prev := db.GetState(addr, key)
	if !storageDiff.seen {
		storageDiff.ValueBefore = prev
		storageDiff.seen = true
	}

	storageDiff.ValueAfter = value
	storageDiff.Preimage = db.preimages[key]
	stateDiff.StorageDiffs[key] = storageDiff
	db.diffs[addr] = stateDiff
	db.cache.Store(getStorageCacheKey(addr, key), value)
	return prev
}

func (db *CachingStateDB) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	stateDiff := db.getStateDiff(addr)

	nonceBefore := db.GetNonce(addr)
	if !stateDiff.NonceSeen {
		stateDiff.NonceBefore = nonceBefore
		stateDiff.NonceSeen = true
	}

	stateDiff.NonceAfter = nonce
	db.diffs[addr] = stateDiff
	db.cache.Store(getNonceCacheKey(addr), nonce)
}

// GetStateDiffs returns every touched account ordered by address.
func (db *CachingStateDB) GetStateDiffs() []StateDiff {
	diffs := make([]StateDiff, 0, len(db.diffs))
	for _, diff := range db.diffs {
		diffs = append(diffs, diff)
	}
	sort.Slice(diffs, func(i, j int) bool {
		return bytes.Compare(diffs[i].Address[:], diffs[j].Address[:]) < 0
	})
	return diffs
}

func getNonceCacheKey(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func getBalanceCacheKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(append(addr.Bytes(), []byte("balance")...))
}

func getCodeCacheKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(append(addr.Bytes(), []byte("code")...))
}

func getStorageCacheKey(addr common.Address, key common.Hash) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes(), key.Bytes())
}

func (db *CachingStateDB) getStateDiff(addr common.Address) StateDiff {
	stateDiff, ok := db.diffs[addr]
	if !ok {
		stateDiff = StateDiff{Address: addr, StorageDiffs: make(map[common.Hash]StorageDiff)}
	}
	return stateDiff
}

func (d *StateDiff) getStorageDiff(key common.Hash) StorageDiff {
	storageDiff, ok := d.StorageDiffs[key]
	if !ok {
		storageDiff = StorageDiff{Key: key}
	}
	return storageDiff
}

func (db *CachingStateDB) AddPreimage(hash common.Hash, preimage []byte) {
	db.preimages[hash] = common.Bytes2Hex(preimage)
}

// Access lists, transient storage, refunds, snapshots and logs do not affect
// the storage diff and are stubbed out.

func (db *CachingStateDB) AddAddressToAccessList(common.Address)                      {}
func (db *CachingStateDB) AddSlotToAccessList(common.Address, common.Hash)            {}
func (db *CachingStateDB) AddressInAccessList(common.Address) bool                    { return true }
func (db *CachingStateDB) SlotInAccessList(common.Address, common.Hash) (bool, bool)  { return true, true }
func (db *CachingStateDB) GetTransientState(common.Address, common.Hash) common.Hash  { return common.Hash{} }
func (db *CachingStateDB) SetTransientState(common.Address, common.Hash, common.Hash) {}

func (db *CachingStateDB) Prepare(params.Rules, common.Address, common.Address, *common.Address, []common.Address, types.AccessList) {
}

func (db *CachingStateDB) SelfDestruct6780(common.Address) (uint256.Int, bool) {
	return *uint256.NewInt(0), false
}

func (db *CachingStateDB) CreateAccount(common.Address)           {}
func (db *CachingStateDB) CreateContract(common.Address)          {}
func (db *CachingStateDB) GetCodeHash(common.Address) common.Hash { return common.Hash{} }
func (db *CachingStateDB) GetCodeSize(addr common.Address) int    { return len(db.GetCode(addr)) }
func (db *CachingStateDB) GetRefund() uint64                      { return 0 }
func (db *CachingStateDB) GetCommittedState(common.Address, common.Hash) common.Hash {
	return common.Hash{}
}
func (db *CachingStateDB) SetCode(common.Address, []byte) []byte   { return nil }
func (db *CachingStateDB) AddRefund(uint64)                        {}
func (db *CachingStateDB) SubRefund(uint64)                        {}
func (db *CachingStateDB) SelfDestruct(common.Address) uint256.Int { return *uint256.NewInt(0) }
func (db *CachingStateDB) HasSelfDestructed(common.Address) bool   { return false }
func (db *CachingStateDB) Exist(common.Address) bool               { return true }
func (db *CachingStateDB) Empty(common.Address) bool               { return false }
func (db *CachingStateDB) RevertToSnapshot(int)                    {}
func (db *CachingStateDB) Snapshot() int                           { return 0 }
func (db *CachingStateDB) AddLog(*types.Log)                       {}
func (db *CachingStateDB) Finalise(bool)                           {}

func (db *CachingStateDB) AccessEvents() *gethState.AccessEvents { return nil }

func (db *CachingStateDB) GetStorageRoot(common.Address) common.Hash { return common.Hash{} }

func (db *CachingStateDB) PointCache() *utils.PointCache { return nil }

func (db *CachingStateDB) Witness() *stateless.Witness { return nil }
