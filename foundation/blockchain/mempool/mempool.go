// Package mempool maintains the pool of transactions waiting to be mined.
// The pool keeps a provisional layer of unspent outputs over the confirmed
// view so double spends are rejected before any block exists.
package mempool

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool/selector"
)

// Set of error variables for admission.
var (
	ErrPoolFull      = errors.New("mempool is full")
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrMissingInputs = errors.New("transaction spends an output that is not available")
	ErrNegativeFee   = errors.New("transaction fee is negative")
	ErrCoinbase      = errors.New("coinbase transactions are not accepted")
)

// Default settings used when the config leaves them unset.
const (
	DefaultMaxEntries = 10_000
	DefaultExpiry     = time.Hour
)

// TxVerifier represents the behavior required to validate a transaction and
// compute the fee it pays.
type TxVerifier interface {
	Check(tx database.Tx, view database.UTXOView) (uint64, error)
}

// Config represents the settings for the mempool.
type Config struct {
	MaxEntries int           // Admission fails once the pool holds this many.
	Expiry     time.Duration // Entries older than this are dropped. Negative disables expiry.
	Strategy   string        // Ordering used for block selection.
	Verifier   TxVerifier
	View       database.UTXOView // The confirmed unspent outputs.
	Now        func() time.Time
}

// Entry represents a transaction held in the pool.
type Entry struct {
	Tx         database.Tx
	ID         string
	Fee        uint64
	Size       int
	AdmittedAt time.Time
	seq        uint64
}

// FeeRate returns the fee per byte.
func (e Entry) FeeRate() float64 {
	return float64(e.Fee) / float64(max(1, e.Size))
}

func (e *Entry) candidate() selector.Candidate {
	return selector.Candidate{
		ID:         e.ID,
		Fee:        e.Fee,
		Size:       e.Size,
		Seq:        e.seq,
		AdmittedAt: e.AdmittedAt,
	}
}

// =============================================================================

// Mempool represents a cache of transactions indexed by id and ordered by the
// configured select strategy.
type Mempool struct {
	mu       sync.Mutex
	pool     map[string]*Entry
	index    []*Entry // Ordered by selectFn.
	overlay  *database.Overlay
	nextSeq  uint64
	selectFn selector.Func

	maxEntries int
	expiry     time.Duration
	verifier   TxVerifier
	view       database.UTXOView
	now        func() time.Time
}

// New constructs a new mempool.
func New(cfg Config) (*Mempool, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if cfg.View == nil {
		return nil, errors.New("confirmed view is required")
	}

	if cfg.Strategy == "" {
		cfg.Strategy = selector.StrategyFeeRate
	}
	selectFn, err := selector.Retrieve(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Expiry == 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	mp := Mempool{
		pool:       make(map[string]*Entry),
		overlay:    database.NewOverlay(cfg.View),
		selectFn:   selectFn,
		maxEntries: cfg.MaxEntries,
		expiry:     cfg.Expiry,
		verifier:   cfg.Verifier,
		view:       cfg.View,
		now:        cfg.Now,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return len(mp.pool)
}

// Contains reports whether the transaction is in the pool.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	_, exists := mp.pool[id]
	return exists
}

// Entries returns a copy of every entry in selection order.
func (mp *Mempool) Entries() []Entry {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	entries := make([]Entry, len(mp.index))
	for i, e := range mp.index {
		entries[i] = *e
	}
	return entries
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]*Entry)
	mp.index = nil
	mp.overlay = database.NewOverlay(mp.view)
}

// =============================================================================

// Add validates the transaction against the provisional view and admits it.
// The fee is computed from the inputs and outputs.
func (mp *Mempool) Add(tx database.Tx) (Entry, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.add(tx, nil)
}

// AddWithFee admits the transaction using the fee supplied by the caller
// instead of the computed one. The transaction is still validated.
func (mp *Mempool) AddWithFee(tx database.Tx, fee int64) (Entry, error) {
	if fee < 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrNegativeFee, fee)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.add(tx, &fee)
}

func (mp *Mempool) add(tx database.Tx, fee *int64) (Entry, error) {
	if tx.IsCoinbase() {
		return Entry{}, ErrCoinbase
	}

	id, err := tx.ID()
	if err != nil {
		return Entry{}, err
	}

	if len(mp.pool) >= mp.maxEntries {
		return Entry{}, fmt.Errorf("%w: %d entries", ErrPoolFull, len(mp.pool))
	}

	if _, exists := mp.pool[id]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	for i, in := range tx.TxIns {
		if _, exists := mp.overlay.LookupUTXO(in.OutPoint()); !exists {
			return Entry{}, fmt.Errorf("%w: input[%d]: %s", ErrMissingInputs, i, in.OutPoint())
		}
	}

	computed, err := mp.verifier.Check(tx, mp.overlay)
	if err != nil {
		return Entry{}, fmt.Errorf("tx %s: %w", id, err)
	}
	if fee != nil {
		computed = uint64(*fee)
	}

	size, err := tx.Size()
	if err != nil {
		return Entry{}, err
	}

	if err := mp.overlay.ApplyTx(tx, 0); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrMissingInputs, err)
	}

	e := Entry{
		Tx:         tx,
		ID:         id,
		Fee:        computed,
		Size:       size,
		AdmittedAt: mp.now(),
		seq:        mp.nextSeq,
	}
	mp.nextSeq++

	mp.insert(&e)

	return e, nil
}

// Remove drops the transaction and any pooled transaction depending on it.
// The ids of every dropped transaction are returned.
func (mp *Mempool) Remove(id string) []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[id]; !exists {
		return nil
	}

	mp.drop(id)
	return append([]string{id}, mp.rebuild()...)
}

// Cleanup drops every expired entry along with its dependents and returns
// their ids.
func (mp *Mempool) Cleanup() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.evictExpired()
}

// =============================================================================

// SelectForBlock returns the entries to place in the next block. Expired
// entries are evicted first. Entries are then taken in strategy order while
// they fit in maxBytes, skipping any that would overflow. A transaction is
// only taken once every pooled transaction it spends from has been taken.
// A negative maxBytes means no limit. Selected entries stay in the pool
// until the block is confirmed.
func (mp *Mempool) SelectForBlock(maxBytes int) []Entry {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.evictExpired()

	remaining := maxBytes
	if maxBytes < 0 {
		remaining = int(^uint(0) >> 1)
	}

	picked := make(map[string]bool)
	var final []Entry

	for progress := true; progress; {
		progress = false

		for _, e := range mp.index {
			if picked[e.ID] || e.Size > remaining || mp.waitsOnParent(e, picked) {
				continue
			}

			picked[e.ID] = true
			remaining -= e.Size
			final = append(final, *e)
			progress = true
		}
	}

	return final
}

// waitsOnParent reports whether the entry spends an output of a pooled
// transaction that has not been picked yet.
func (mp *Mempool) waitsOnParent(e *Entry, picked map[string]bool) bool {
	for _, in := range e.Tx.TxIns {
		if _, pooled := mp.pool[in.PrevTxID]; pooled && !picked[in.PrevTxID] {
			return true
		}
	}
	return false
}

// EvictConfirmedAndConflicting reconciles the pool with a block that was
// just confirmed. Any entry included in the block or spending an outpoint
// the block consumed is dropped, as are the entries depending on them. The
// ids of every dropped transaction are returned.
func (mp *Mempool) EvictConfirmedAndConflicting(block database.Block) []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	confirmed := make(map[string]bool, len(block.Trans))
	spent := make(map[database.OutPoint]bool)
	for _, tx := range block.Trans {
		if id, err := tx.ID(); err == nil {
			confirmed[id] = true
		}
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.TxIns {
			spent[in.OutPoint()] = true
		}
	}

	var removed []string
	for _, e := range slices.Clone(mp.index) {
		evict := confirmed[e.ID]
		for _, in := range e.Tx.TxIns {
			if spent[in.OutPoint()] {
				evict = true
				break
			}
		}

		if evict {
			mp.drop(e.ID)
			removed = append(removed, e.ID)
		}
	}

	return append(removed, mp.rebuild()...)
}

// =============================================================================

// evictExpired drops entries older than the expiry along with their
// dependents.
func (mp *Mempool) evictExpired() []string {
	if mp.expiry < 0 {
		return nil
	}

	now := mp.now()

	var removed []string
	for _, e := range slices.Clone(mp.index) {
		if now.Sub(e.AdmittedAt) > mp.expiry {
			mp.drop(e.ID)
			removed = append(removed, e.ID)
		}
	}

	if len(removed) == 0 {
		return nil
	}

	return append(removed, mp.rebuild()...)
}

// rebuild recreates the provisional layer from the confirmed view by
// replaying the pool in admission order. Entries whose inputs are no longer
// available are dropped and their ids returned.
func (mp *Mempool) rebuild() []string {
	byAdmission := slices.Clone(mp.index)
	sort.Slice(byAdmission, func(i, j int) bool {
		return byAdmission[i].seq < byAdmission[j].seq
	})

	mp.overlay = database.NewOverlay(mp.view)

	var removed []string
	for _, e := range byAdmission {
		if err := mp.overlay.ApplyTx(e.Tx, 0); err != nil {
			mp.drop(e.ID)
			removed = append(removed, e.ID)
		}
	}

	return removed
}

// insert places the entry in the map and at its ordered index position.
func (mp *Mempool) insert(e *Entry) {
	c := e.candidate()
	pos := sort.Search(len(mp.index), func(i int) bool {
		return mp.selectFn(c, mp.index[i].candidate())
	})

	mp.index = slices.Insert(mp.index, pos, e)
	mp.pool[e.ID] = e
}

// drop removes the entry from the map and the index. The overlay is left
// for the caller to rebuild.
func (mp *Mempool) drop(id string) {
	delete(mp.pool, id)

	i := slices.IndexFunc(mp.index, func(e *Entry) bool {
		return e.ID == id
	})
	if i >= 0 {
		mp.index = slices.Delete(mp.index, i, i+1)
	}
}
