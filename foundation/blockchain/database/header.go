package database

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/ardanlabs/powchain/foundation/blockchain/codec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"
)

// Set of error variables for mining and header validation.
var (
	ErrNonceExhausted = errors.New("nonce space exhausted without a solution")
	ErrAlreadyMined   = errors.New("header has already been mined")
	ErrInvalidPOW     = errors.New("block hash does not satisfy the target")
)

// HeaderSize is the serialized size of a header including the nonce.
const HeaderSize = 80

// prefixSize is the serialized size of a header without the nonce.
const prefixSize = HeaderSize - 4

// nonceSpace is the number of distinct 32 bit nonces.
const nonceSpace uint64 = 1 << 32

// pollMask sets how often a mining worker checks for cancellation.
const pollMask = 1<<12 - 1

// =============================================================================

// Bits is the compact encoding of a proof of work target.
type Bits uint32

// String implements the fmt.Stringer interface.
func (b Bits) String() string {
	return fmt.Sprintf("%08x", uint32(b))
}

// MarshalText implements the encoding.TextMarshaler interface.
func (b Bits) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (b *Bits) UnmarshalText(text []byte) error {
	v, err := ParseBits(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseBits parses the hex form of compact bits, with or without a 0x prefix.
func ParseBits(s string) (Bits, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing bits %q: %w", s, err)
	}

	return Bits(v), nil
}

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Version       uint32 `json:"version"`
	PrevBlockHash string `json:"prev_block_hash"`      // Display form hash of the previous block.
	MerkleRoot    string `json:"merkle_root"`          // Display form merkle root of the block's transaction ids.
	Timestamp     uint32 `json:"timestamp"`            // Unix seconds.
	Bits          Bits   `json:"bits"`                 // Compact form of the target the hash must be below.
	Nonce         uint32 `json:"nonce"`                // Value identified to solve the hash solution.
	BlockHash     string `json:"block_hash,omitempty"` // Set once mining succeeds and never recomputed.
}

// Prefix serializes every header field except the nonce:
// version | prev hash | merkle root | timestamp | bits
func (h BlockHeader) Prefix() ([]byte, error) {
	prev, err := codec.HashFromHex(h.PrevBlockHash)
	if err != nil {
		return nil, fmt.Errorf("prev block hash: %w", err)
	}

	root, err := codec.HashFromHex(h.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("merkle root: %w", err)
	}

	buf := make([]byte, prefixSize, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], prev[:])
	copy(buf[36:68], root[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], uint32(h.Bits))

	return buf, nil
}

// Serialize returns the full 80 byte header.
func (h BlockHeader) Serialize() ([]byte, error) {
	buf, err := h.Prefix()
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(buf, h.Nonce), nil
}

// ComputeHash hashes the header with its current nonce.
func (h BlockHeader) ComputeHash() (chainhash.Hash, error) {
	buf, err := h.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(buf), nil
}

// CheckPOW recomputes the header hash and confirms it matches the stored
// hash and is below the target.
func (h BlockHeader) CheckPOW() error {
	hash, err := h.ComputeHash()
	if err != nil {
		return err
	}

	if h.BlockHash != hash.String() {
		return fmt.Errorf("block hash mismatch, got %s, exp %s", h.BlockHash, hash)
	}

	tb, always := targetBytes(h.Bits.Target())
	if !always && !below(hash, tb) {
		return fmt.Errorf("%w: hash %s, bits %s", ErrInvalidPOW, hash, h.Bits)
	}

	return nil
}

// =============================================================================

// MineConfig represents the tunables for a mining run.
type MineConfig struct {
	Workers    int    // Parallel searchers, defaults to the number of CPUs.
	NonceLimit uint64 // Number of nonces searched starting at 0, defaults to 2^32.
	EvHandler  func(v string, args ...any)
}

// Mine searches for a nonce that brings the header hash below the target.
// The nonce space is split into disjoint ranges searched in parallel, the
// first worker to succeed cancels the others. Pointer semantics are being
// used since the nonce and hash are set on success. The number of hashes
// computed is returned in every case.
func (h *BlockHeader) Mine(ctx context.Context, cfg MineConfig) (uint64, error) {
	if h.BlockHash != "" {
		return 0, ErrAlreadyMined
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	// Every field except the nonce is frozen for the entire search.
	prefix, err := h.Prefix()
	if err != nil {
		return 0, err
	}

	// No hash can be below a zero target.
	target := h.Bits.Target()
	if target.Sign() <= 0 {
		return 0, fmt.Errorf("%w: bits %s encode a zero target", ErrNonceExhausted, h.Bits)
	}
	tb, always := targetBytes(target)

	limit := cfg.NonceLimit
	if limit == 0 || limit > nonceSpace {
		limit = nonceSpace
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if uint64(workers) > limit {
		workers = int(limit)
	}

	ev("database: Mine: MINING: started: bits[%s]: workers[%d]: nonces[%d]", h.Bits, workers, limit)

	mineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(mineCtx)

	var (
		found     atomic.Bool
		attempts  atomic.Uint64
		winNonce  uint32
		winHash   chainhash.Hash
		chunkSize = limit / uint64(workers)
	)

	for w := range workers {
		start := uint64(w) * chunkSize
		end := start + chunkSize
		if w == workers-1 {
			end = limit
		}

		g.Go(func() error {
			buf := make([]byte, HeaderSize)
			copy(buf, prefix)

			var n uint64
			defer func() {
				attempts.Add(n)
			}()

			for nonce := start; nonce < end; nonce++ {
				if n&pollMask == 0 && gctx.Err() != nil {
					return nil
				}
				n++

				if n%1_000_000 == 0 {
					ev("database: Mine: MINING: worker[%d]: attempts[%d]", w, n)
				}

				binary.LittleEndian.PutUint32(buf[prefixSize:], uint32(nonce))
				hash := chainhash.DoubleHashH(buf)
				if !always && !below(hash, tb) {
					continue
				}

				if found.CompareAndSwap(false, true) {
					winNonce = uint32(nonce)
					winHash = hash
					cancel()
				}
				return nil
			}

			return nil
		})
	}

	g.Wait()
	total := attempts.Load()

	if found.Load() {
		h.Nonce = winNonce
		h.BlockHash = winHash.String()
		ev("database: Mine: MINING: SOLVED: nonce[%d]: hash[%s]: attempts[%d]", h.Nonce, h.BlockHash, total)
		return total, nil
	}

	if err := ctx.Err(); err != nil {
		ev("database: Mine: MINING: CANCELLED: attempts[%d]", total)
		return total, err
	}

	ev("database: Mine: MINING: EXHAUSTED: attempts[%d]", total)
	return total, fmt.Errorf("%w: searched %d nonces", ErrNonceExhausted, limit)
}

// =============================================================================

// targetBytes returns the target as 32 big endian bytes. The second return
// is true when the target is at least 2^256 and every hash satisfies it.
func targetBytes(target *big.Int) ([chainhash.HashSize]byte, bool) {
	var tb [chainhash.HashSize]byte
	if target.BitLen() > 8*chainhash.HashSize {
		return tb, true
	}
	target.FillBytes(tb[:])
	return tb, false
}

// below reports whether the hash, read as a big endian integer of its
// display bytes, is strictly less than the target.
func below(hash chainhash.Hash, target [chainhash.HashSize]byte) bool {
	var be [chainhash.HashSize]byte
	for i := range hash {
		be[i] = hash[chainhash.HashSize-1-i]
	}
	return bytes.Compare(be[:], target[:]) < 0
}
