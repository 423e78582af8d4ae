// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining the confirmed set of unspent outputs.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// Set of error variables for the database.
var (
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage unavailable")
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(height uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// TxLocator interface represents the behavior a storage can provide to find
// confirmed transactions itself. The database keeps its own index for a
// storage without it.
type TxLocator interface {
	LookupTx(id string) (TxLocation, bool, error)
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator walks the stored blocks starting with the genesis block.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// TxLocation identifies where a confirmed transaction lives.
type TxLocation struct {
	Height uint64 `json:"height"`
	Index  int    `json:"index"`
}

// Database manages the confirmed chain. It owns the authoritative set of
// unspent outputs.
type Database struct {
	mu sync.RWMutex

	latestBlock Block
	hasBlocks   bool
	utxos       *UTXOSet
	txIndex     map[string]TxLocation

	storage Storage
	locator TxLocator
}

// New constructs a new database and replays every stored block to rebuild
// the unspent output set.
func New(storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	db := Database{
		utxos:   NewUTXOSet(),
		txIndex: make(map[string]TxLocation),
		storage: storage,
	}

	if locator, ok := storage.(TxLocator); ok {
		db.locator = locator
	}

	iter := db.storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if db.hasBlocks {
			err = block.ValidateBlock(db.latestBlock, evHandler)
		} else {
			err = block.ValidateGenesis(evHandler)
		}
		if err != nil {
			return nil, fmt.Errorf("replaying block %d: %w", block.Height, err)
		}

		if err := db.apply(block); err != nil {
			return nil, fmt.Errorf("replaying block %d: %w", block.Height, err)
		}
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Reset re-initializes the database back to an empty chain.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	db.latestBlock = Block{}
	db.hasBlocks = false
	db.utxos = NewUTXOSet()
	db.txIndex = make(map[string]TxLocation)

	return nil
}

// Write appends the block to storage and applies it to the unspent output
// set. The block must extend the latest block. Nothing changes if any
// transaction spends a missing output or storage fails.
func (db *Database) Write(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	exp := uint64(0)
	if db.hasBlocks {
		exp = db.latestBlock.Height + 1
	}
	if block.Height != exp {
		return fmt.Errorf("%w: block height %d, exp %d", ErrChainMoved, block.Height, exp)
	}

	ov, err := db.overlayFor(block)
	if err != nil {
		return err
	}

	if err := db.storage.Write(NewBlockData(block)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	db.commit(block, ov)

	return nil
}

// LatestBlock returns the latest block. False is returned for an empty chain.
func (db *Database) LatestBlock() (Block, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock, db.hasBlocks
}

// GetBlock locates and returns the block at the specified height.
func (db *Database) GetBlock(height uint64) (Block, error) {
	db.mu.RLock()
	latest, hasBlocks := db.latestBlock, db.hasBlocks
	db.mu.RUnlock()

	if !hasBlocks || height > latest.Height {
		return Block{}, fmt.Errorf("%w: block %d", ErrNotFound, height)
	}
	if height == latest.Height {
		return latest, nil
	}

	blockData, err := db.storage.GetBlock(height)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return ToBlock(blockData)
}

// ForEach returns an iterator to walk through all the blocks starting with
// the genesis block.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// LookupUTXO implements the UTXOView interface against confirmed state.
func (db *Database) LookupUTXO(op OutPoint) (UTXO, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.LookupUTXO(op)
}

// UTXOCount returns the number of confirmed unspent outputs.
func (db *Database) UTXOCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.Len()
}

// PaidTo returns the confirmed unspent outputs locked to the pubkey hash.
func (db *Database) PaidTo(pubKeyHash []byte) []UnspentOutput {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.PaidTo(pubKeyHash)
}

// FindTx returns a confirmed transaction and its location. The storage
// answers when it is a TxLocator.
func (db *Database) FindTx(id string) (Tx, TxLocation, error) {
	loc, exists, err := db.locate(id)
	if err != nil {
		return Tx{}, TxLocation{}, err
	}

	if !exists {
		return Tx{}, TxLocation{}, fmt.Errorf("%w: tx %s", ErrNotFound, id)
	}

	block, err := db.GetBlock(loc.Height)
	if err != nil {
		return Tx{}, TxLocation{}, err
	}

	if loc.Index >= len(block.Trans) {
		return Tx{}, TxLocation{}, fmt.Errorf("%w: tx %s index %d in block %d", ErrNotFound, id, loc.Index, loc.Height)
	}

	return block.Trans[loc.Index], loc, nil
}

// =============================================================================

// locate finds the transaction under the read lock so a block being written
// is never seen before it is the latest block.
func (db *Database) locate(id string) (TxLocation, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.locator == nil {
		loc, exists := db.txIndex[id]
		return loc, exists, nil
	}

	loc, exists, err := db.locator.LookupTx(id)
	if err != nil {
		return TxLocation{}, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if exists && (!db.hasBlocks || loc.Height > db.latestBlock.Height) {
		return TxLocation{}, false, nil
	}

	return loc, exists, nil
}

// apply is used during replay where the block is already in storage.
func (db *Database) apply(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ov, err := db.overlayFor(block)
	if err != nil {
		return err
	}

	db.commit(block, ov)

	return nil
}

// overlayFor applies the block's transactions on a provisional layer.
func (db *Database) overlayFor(block Block) (*Overlay, error) {
	ov := NewOverlay(db.utxos)
	for i, tx := range block.Trans {
		if err := ov.ApplyTx(tx, block.Height); err != nil {
			return nil, fmt.Errorf("tx[%d]: %w", i, err)
		}
	}
	return ov, nil
}

// commit makes the block the latest block.
func (db *Database) commit(block Block, ov *Overlay) {
	db.utxos.Commit(ov)

	// A locating storage indexes the transactions when the block is written.
	if db.locator == nil {
		for i, tx := range block.Trans {
			if id, err := tx.ID(); err == nil {
				db.txIndex[id] = TxLocation{Height: block.Height, Index: i}
			}
		}
	}

	db.latestBlock = block
	db.hasBlocks = true
}
