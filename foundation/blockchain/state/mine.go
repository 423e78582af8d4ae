package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/codec"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
	"github.com/ardanlabs/powchain/foundation/events"
)

// ErrBlockRejected is returned when a block from a peer can't extend the chain.
var ErrBlockRejected = errors.New("block rejected")

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The block pays the subsidy plus the
// fees of the selected transactions to the miner. A block with only the
// coinbase is mined when the mempool is empty.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: assemble block")

	block, err := s.assembleBlock()
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: txs[%d]: bits[%s]", block.Height, block.TxCount, block.Header.Bits)

	// Attempt to solve the POW puzzle. This can be cancelled.
	start := time.Now()
	attempts, err := block.Header.Mine(ctx, database.MineConfig{
		Workers:   s.mineWorkers,
		EvHandler: s.evHandler,
	})
	s.metrics.ObserveMining(attempts, time.Since(start), miningOutcome(err))
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, _ := s.db.LatestBlock()
	if err := block.ValidateBlock(latest, s.evHandler); err != nil {
		return database.Block{}, err
	}

	if err := s.acceptBlock(block); err != nil {
		return database.Block{}, err
	}

	s.publishBlock(events.KindBlockMined, block)

	return block, nil
}

// ProcessPeerBlock takes a block received from a peer, validates it and
// if that passes, writes the block to storage.
func (s *State) ProcessPeerBlock(block database.Block) error {
	s.evHandler("state: ProcessPeerBlock: started : blk[%d]: hash[%s]", block.Height, block.Hash())
	defer s.evHandler("state: ProcessPeerBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessPeerBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, _ := s.db.LatestBlock()
	if err := block.ValidateBlock(latest, s.evHandler); err != nil {
		return fmt.Errorf("%w: %w", ErrBlockRejected, err)
	}

	s.evHandler("state: ProcessPeerBlock: validate: blk[%d]: check: block size is within the limit", block.Height)

	if block.Size > uint64(s.genesis.MaxBlockBytes) {
		return fmt.Errorf("%w: block size %d, max %d", ErrBlockRejected, block.Size, s.genesis.MaxBlockBytes)
	}

	s.evHandler("state: ProcessPeerBlock: validate: blk[%d]: check: difficulty matches the schedule", block.Height)

	bits, err := s.nextBits(latest)
	if err != nil {
		return err
	}
	if block.Header.Bits != bits {
		return fmt.Errorf("%w: block bits %s, exp %s", ErrBlockRejected, block.Header.Bits, bits)
	}

	s.evHandler("state: ProcessPeerBlock: validate: blk[%d]: check: transactions are valid", block.Height)

	fees, err := s.checkBlockTxs(block.Trans[1:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBlockRejected, err)
	}

	s.evHandler("state: ProcessPeerBlock: validate: blk[%d]: check: coinbase pays at most reward plus fees", block.Height)

	rules := verifier.CoinbaseRules{
		Height:      block.Height,
		CheckHeight: true,
		MaxReward:   addCapped(s.genesis.Reward(block.Height), fees),
		CheckReward: true,
	}
	if err := s.verifier.CheckCoinbase(block.Trans[0], rules); err != nil {
		return fmt.Errorf("%w: coinbase: %w", ErrBlockRejected, err)
	}

	if err := s.acceptBlock(block); err != nil {
		return err
	}

	s.publishBlock(events.KindPeerBlock, block)

	return nil
}

// =============================================================================

// assembleBlock builds the next unmined block from the mempool.
func (s *State) assembleBlock() (database.Block, error) {
	latest, _ := s.db.LatestBlock()
	height := latest.Height + 1

	bits, err := s.nextBits(latest)
	if err != nil {
		return database.Block{}, err
	}

	lock := script.P2PKH(s.minerPKH)

	// The coinbase size does not depend on the amount it pays.
	sizer := database.NewCoinbaseTx(height, 0, lock, s.genesis.CoinbaseMessage)
	cbSize, err := sizer.Size()
	if err != nil {
		return database.Block{}, err
	}

	budget := s.genesis.MaxBlockBytes - database.HeaderSize - codec.VarIntSize(math.MaxUint32) - cbSize
	if budget < 0 {
		budget = 0
	}

	entries := s.mempool.SelectForBlock(budget)
	s.evHandler("state: assembleBlock: selected[%d]: budget[%d]", len(entries), budget)

	// The mempool view is provisional, so every selected transaction is
	// checked again against the confirmed chain.
	ov := database.NewOverlay(s.db)
	trans := make([]database.Tx, 1, len(entries)+1)

	var fees uint64
	for _, e := range entries {
		fee, err := s.verifier.Check(e.Tx, ov)
		if err == nil {
			err = ov.ApplyTx(e.Tx, height)
		}
		if err != nil {
			s.evHandler("state: assembleBlock: WARNING: skip tx[%s]: %s", e.ID, err)
			continue
		}

		fees = addCapped(fees, fee)
		trans = append(trans, e.Tx)
	}

	reward := addCapped(s.genesis.Reward(height), fees)
	trans[0] = database.NewCoinbaseTx(height, reward, lock, s.genesis.CoinbaseMessage)

	ts := uint32(s.now().Unix())
	ts = max(ts, latest.Header.Timestamp)

	return database.NewBlock(height, latest.Hash(), bits, ts, trans)
}

// checkBlockTxs validates the non coinbase transactions of a block in order
// against the confirmed chain and returns the fees they pay.
func (s *State) checkBlockTxs(trans []database.Tx) (uint64, error) {
	ov := database.NewOverlay(s.db)

	var fees uint64
	for i, tx := range trans {
		fee, err := s.verifier.Check(tx, ov)
		if err != nil {
			return 0, fmt.Errorf("tx[%d]: %w", i+1, err)
		}
		if err := ov.ApplyTx(tx, 0); err != nil {
			return 0, fmt.Errorf("tx[%d]: %w", i+1, err)
		}
		fees = addCapped(fees, fee)
	}

	return fees, nil
}

// nextBits returns the difficulty required of the block following prev.
func (s *State) nextBits(prev database.Block) (database.Bits, error) {
	height := prev.Height + 1

	bits := prev.Header.Bits
	if bits == 0 {
		bits = s.genesis.DefaultBits
	}

	if !database.IsRetargetHeight(height, s.genesis.RetargetInterval) {
		return bits, nil
	}

	first, err := s.db.GetBlock(height - s.genesis.RetargetInterval)
	if err != nil {
		return 0, fmt.Errorf("retarget: %w", err)
	}

	next := database.NextBits(bits, first.Header.Timestamp, prev.Header.Timestamp, s.genesis.RetargetParams())
	s.evHandler("state: nextBits: RETARGET: blk[%d]: from[%s]: to[%s]", height, bits, next)

	return next, nil
}

// acceptBlock writes the block and reconciles the mempool. The caller must
// hold the state lock.
func (s *State) acceptBlock(block database.Block) error {
	s.evHandler("state: acceptBlock: write to storage: blk[%d]", block.Height)

	if err := s.db.Write(block); err != nil {
		return err
	}

	removed := s.mempool.EvictConfirmedAndConflicting(block)
	s.evHandler("state: acceptBlock: mempool: evicted[%d]", len(removed))

	s.metrics.SetChainHeight(block.Height)
	s.metrics.SetMempoolSize(s.mempool.Count())

	return nil
}

// publishBlock announces an accepted block.
func (s *State) publishBlock(kind events.Kind, block database.Block) {
	s.publisher.Publish(events.Event{
		Kind:    kind,
		Height:  block.Height,
		Hash:    block.Hash(),
		TxCount: block.TxCount,
	})
}

// =============================================================================

// addCapped adds without wrapping past the largest amount.
func addCapped(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func miningOutcome(err error) string {
	switch {
	case err == nil:
		return "solved"
	case errors.Is(err, database.ErrNonceExhausted):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
