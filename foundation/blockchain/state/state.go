// Package state is the core API for the blockchain and implements all the
// business rules and processing. It builds, mines and accepts blocks and keeps
// the mempool consistent with the confirmed chain.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
	"github.com/ardanlabs/powchain/foundation/events"
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Tx)
}

// Network interface represents the behavior required to send blocks and
// transactions to other nodes.
type Network interface {
	BroadcastBlock(block database.Block) error
	BroadcastTx(tx database.Tx) error
}

// Metrics interface represents the behavior required to record what the
// node is doing.
type Metrics interface {
	ObserveMining(attempts uint64, duration time.Duration, outcome string)
	ObserveAdmission(outcome string)
	SetMempoolSize(n int)
	SetChainHeight(height uint64)
}

// Publisher interface represents the behavior required to announce blocks
// and transactions the node accepted.
type Publisher interface {
	Publish(e events.Event)
}

// TxVerifier interface represents the behavior required to validate regular
// and coinbase transactions.
type TxVerifier interface {
	Check(tx database.Tx, view database.UTXOView) (uint64, error)
	CheckCoinbase(tx database.Tx, rules verifier.CoinbaseRules) error
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis        genesis.Genesis
	Storage        database.Storage
	Verifier       TxVerifier
	MinerPKH       []byte // Pubkey hash receiving the block rewards.
	SelectStrategy string
	MineWorkers    int
	Network        Network
	Metrics        Metrics
	Publisher      Publisher
	Now            func() time.Time
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	minerPKH    []byte
	mineWorkers int
	evHandler   EventHandler
	now         func() time.Time

	genesis   genesis.Genesis
	verifier  TxVerifier
	mempool   *mempool.Mempool
	db        *database.Database
	network   Network
	metrics   Metrics
	publisher Publisher

	Worker Worker
}

// New constructs a new blockchain for data management. Every stored block is
// replayed to rebuild the unspent outputs. A genesis block is mined when the
// storage is empty.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if len(cfg.MinerPKH) != script.PubKeyHashSize {
		return nil, fmt.Errorf("miner pubkey hash must be %d bytes, got %d", script.PubKeyHashSize, len(cfg.MinerPKH))
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	if cfg.Verifier == nil {
		cfg.Verifier = verifier.New(signature.Secp256k1{})
	}

	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Load all existing blocks from storage into memory for processing.
	db, err := database.New(cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Construct a mempool layered over the confirmed outputs.
	mp, err := mempool.New(mempool.Config{
		MaxEntries: cfg.Genesis.MempoolMaxEntries,
		Expiry:     time.Duration(cfg.Genesis.MempoolExpiry),
		Strategy:   cfg.SelectStrategy,
		Verifier:   cfg.Verifier,
		View:       db,
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		minerPKH:    append([]byte{}, cfg.MinerPKH...),
		mineWorkers: cfg.MineWorkers,
		evHandler:   ev,
		now:         cfg.Now,

		genesis:   cfg.Genesis,
		verifier:  cfg.Verifier,
		mempool:   mp,
		db:        db,
		network:   cfg.Network,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
	}

	if _, exists := db.LatestBlock(); !exists {
		if err := state.createGenesis(context.Background()); err != nil {
			return nil, err
		}
	}

	latest, _ := db.LatestBlock()
	state.metrics.SetChainHeight(latest.Height)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	// Make sure the database is properly closed.
	return s.db.Close()
}

// Truncate resets the chain both on disk and in memory and mines a new
// genesis block.
func (s *State) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mempool.Truncate()
	s.metrics.SetMempoolSize(0)

	if err := s.db.Reset(); err != nil {
		return err
	}

	return s.createGenesisLocked(ctx)
}

// =============================================================================

// createGenesis mines and writes the first block of the chain.
func (s *State) createGenesis(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createGenesisLocked(ctx)
}

func (s *State) createGenesisLocked(ctx context.Context) error {
	s.evHandler("state: createGenesis: started: bits[%s]", s.genesis.GenesisBits)

	ts := s.now()
	if !s.genesis.Date.IsZero() {
		ts = s.genesis.Date
	}

	coinbase := database.NewCoinbaseTx(0, s.genesis.Reward(0), script.P2PKH(s.minerPKH), s.genesis.CoinbaseMessage)

	block, err := database.NewBlock(0, signature.ZeroHash, s.genesis.GenesisBits, uint32(ts.Unix()), []database.Tx{coinbase})
	if err != nil {
		return err
	}

	if _, err := block.Header.Mine(ctx, database.MineConfig{Workers: s.mineWorkers}); err != nil {
		return fmt.Errorf("mining genesis: %w", err)
	}

	if err := s.db.Write(block); err != nil {
		return err
	}

	s.evHandler("state: createGenesis: completed: hash[%s]", block.Hash())

	return nil
}

// =============================================================================

type nopMetrics struct{}

func (nopMetrics) ObserveMining(uint64, time.Duration, string) {}
func (nopMetrics) ObserveAdmission(string)                     {}
func (nopMetrics) SetMempoolSize(int)                          {}
func (nopMetrics) SetChainHeight(uint64)                       {}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
