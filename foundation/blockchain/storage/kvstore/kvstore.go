// Package kvstore implements the ability to read and write blocks to a
// pebble key value store. Blocks are keyed by height and every confirmed
// transaction id is indexed to the block holding it.
package kvstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// ErrEndOfChain is returned by the iterator once every block was read.
var ErrEndOfChain = errors.New("end of chain")

// Sizing for the transaction id filter.
const (
	filterEstimate = 1_000_000
	falsePositive  = 0.01
)

// Key layout.
var (
	blockPrefix = []byte("block/")
	txPrefix    = []byte("tx/")
	latestKey   = []byte("latest")
)

// KVStore represents the serialization implementation for reading and storing
// blocks in a pebble database. This implements the database.Storage interface.
type KVStore struct {
	mu     sync.RWMutex
	db     *pebble.DB
	filter *bloom.BloomFilter
	next   uint64
}

// New opens or creates the store at the specified path and loads the
// transaction id filter.
func New(path string) (*KVStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	kv := KVStore{db: db}
	if err := kv.load(); err != nil {
		db.Close()
		return nil, err
	}

	return &kv, nil
}

// Close flushes and closes the underlying database.
func (kv *KVStore) Close() error {
	return kv.db.Close()
}

// Write stores the block, its transaction index, and the latest height in a
// single batch. Blocks must be written in height order.
func (kv *KVStore) Write(blockData database.BlockData) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if blockData.Height != kv.next {
		return fmt.Errorf("block %d is out of order, next height is %d", blockData.Height, kv.next)
	}

	rec, ids, err := newBlockRecord(blockData)
	if err != nil {
		return err
	}

	value, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding block %d: %w", blockData.Height, err)
	}

	batch := kv.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(blockKey(blockData.Height), value, nil); err != nil {
		return err
	}

	for i, id := range ids {
		loc, err := msgpack.Marshal(database.TxLocation{Height: blockData.Height, Index: i})
		if err != nil {
			return err
		}
		if err := batch.Set(txKey(id), loc, nil); err != nil {
			return err
		}
	}

	if err := batch.Set(latestKey, heightBytes(blockData.Height), nil); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing block %d: %w", blockData.Height, err)
	}

	for _, id := range ids {
		kv.filter.AddString(id)
	}
	kv.next = blockData.Height + 1

	return nil
}

// GetBlock locates and returns the contents of the specified block by height.
func (kv *KVStore) GetBlock(height uint64) (database.BlockData, error) {
	value, closer, err := kv.db.Get(blockKey(height))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return database.BlockData{}, fmt.Errorf("block %d: %w", height, database.ErrNotFound)
		}
		return database.BlockData{}, err
	}
	defer closer.Close()

	var rec blockRecord
	if err := msgpack.Unmarshal(value, &rec); err != nil {
		return database.BlockData{}, fmt.Errorf("decoding block %d: %w", height, err)
	}

	return rec.toBlockData()
}

// LookupTx implements the database.TxLocator interface. The filter answers
// for ids that were never written without touching the database.
func (kv *KVStore) LookupTx(id string) (database.TxLocation, bool, error) {
	kv.mu.RLock()
	maybe := kv.filter.TestString(id)
	kv.mu.RUnlock()

	if !maybe {
		return database.TxLocation{}, false, nil
	}

	value, closer, err := kv.db.Get(txKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return database.TxLocation{}, false, nil
		}
		return database.TxLocation{}, false, err
	}
	defer closer.Close()

	var loc database.TxLocation
	if err := msgpack.Unmarshal(value, &loc); err != nil {
		return database.TxLocation{}, false, fmt.Errorf("decoding tx %s: %w", id, err)
	}

	return loc, true, nil
}

// Height returns the number of stored blocks.
func (kv *KVStore) Height() uint64 {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	return kv.next
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (kv *KVStore) ForEach() database.Iterator {
	return &KVIterator{store: kv}
}

// Reset deletes every key and clears the filter.
func (kv *KVStore) Reset() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if err := kv.db.DeleteRange([]byte{0x00}, []byte{0xff}, pebble.Sync); err != nil {
		return err
	}

	kv.filter = bloom.NewWithEstimates(filterEstimate, falsePositive)
	kv.next = 0

	return nil
}

// load reads the latest height and adds every indexed id to the filter.
func (kv *KVStore) load() error {
	kv.filter = bloom.NewWithEstimates(filterEstimate, falsePositive)

	value, closer, err := kv.db.Get(latestKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		kv.next = 0
	case err != nil:
		return err
	default:
		kv.next = binary.BigEndian.Uint64(value) + 1
		closer.Close()
	}

	iter, err := kv.db.NewIter(&pebble.IterOptions{
		LowerBound: txPrefix,
		UpperBound: prefixEnd(txPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		kv.filter.Add(iter.Key()[len(txPrefix):])
	}

	return iter.Error()
}

// =============================================================================

// KVIterator represents the iteration implementation for walking through
// and reading blocks by height. This implements the database Iterator
// interface.
type KVIterator struct {
	store   *KVStore
	current uint64
	eoc     bool
}

// Next retrieves the next block from the store.
func (ki *KVIterator) Next() (database.BlockData, error) {
	if ki.eoc {
		return database.BlockData{}, ErrEndOfChain
	}

	blockData, err := ki.store.GetBlock(ki.current)
	if errors.Is(err, database.ErrNotFound) {
		ki.eoc = true
		return database.BlockData{}, ErrEndOfChain
	}
	ki.current++

	return blockData, err
}

// Done returns the end of chain value.
func (ki *KVIterator) Done() bool {
	return ki.eoc
}

// =============================================================================

func blockKey(height uint64) []byte {
	return append(append([]byte{}, blockPrefix...), heightBytes(height)...)
}

func txKey(id string) []byte {
	return append(append([]byte{}, txPrefix...), id...)
}

func heightBytes(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return b[:]
}

// prefixEnd returns the first key after every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}
