package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/codec"
	"github.com/ardanlabs/powchain/foundation/blockchain/merkle"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
)

// ErrChainMoved is returned when a block no longer extends the latest block.
var ErrChainMoved = errors.New("block does not extend the latest block")

// =============================================================================

// Block represents a group of transactions batched together. The coinbase
// transaction is always first.
type Block struct {
	Height  uint64      `json:"height"`
	Size    uint64      `json:"size"`
	Header  BlockHeader `json:"header"`
	TxCount uint32      `json:"tx_count"`
	Trans   []Tx        `json:"txs"`
}

// NewBlock constructs an unmined block. The merkle root and size are computed
// from the transactions.
func NewBlock(height uint64, prevBlockHash string, bits Bits, timestamp uint32, trans []Tx) (Block, error) {
	b := Block{
		Height: height,
		Header: BlockHeader{
			Version:       1,
			PrevBlockHash: prevBlockHash,
			Timestamp:     timestamp,
			Bits:          bits,
		},
		TxCount: uint32(len(trans)),
		Trans:   append([]Tx{}, trans...),
	}

	ids, err := b.TxIDs()
	if err != nil {
		return Block{}, err
	}

	b.Header.MerkleRoot, err = merkle.ComputeRoot(ids)
	if err != nil {
		return Block{}, err
	}

	b.Size, err = b.ComputeSize()
	if err != nil {
		return Block{}, err
	}

	return b, nil
}

// Hash returns the mined hash of the block.
func (b Block) Hash() string {
	return b.Header.BlockHash
}

// TxIDs returns the ids of the transactions in block order.
func (b Block) TxIDs() ([]string, error) {
	ids := make([]string, len(b.Trans))
	for i, tx := range b.Trans {
		id, err := tx.ID()
		if err != nil {
			return nil, fmt.Errorf("tx[%d]: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// ComputeSize returns the serialized size of the header, the transaction
// count and every transaction.
func (b Block) ComputeSize() (uint64, error) {
	size := uint64(HeaderSize + codec.VarIntSize(uint64(len(b.Trans))))
	for i, tx := range b.Trans {
		n, err := tx.Size()
		if err != nil {
			return 0, fmt.Errorf("tx[%d]: %w", i, err)
		}
		size += uint64(n)
	}
	return size, nil
}

// CoinbaseAmount returns the total paid out by the coinbase transaction.
func (b Block) CoinbaseAmount() uint64 {
	if len(b.Trans) == 0 {
		return 0
	}
	sum, _ := b.Trans[0].OutputSum()
	return sum
}

// =============================================================================

// ValidateGenesis checks a block can be the first block of a chain.
func (b Block) ValidateGenesis(evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateGenesis: validate: blk[%d]: check: block is at height zero", b.Height)

	if b.Height != 0 {
		return fmt.Errorf("genesis block height is %d", b.Height)
	}

	evHandler("database: ValidateGenesis: validate: blk[%d]: check: previous hash is zero", b.Height)

	if b.Header.PrevBlockHash != signature.ZeroHash {
		return fmt.Errorf("genesis previous hash is %s", b.Header.PrevBlockHash)
	}

	return b.validateContents(evHandler)
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain after the previous block.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block height is the next height", b.Height)

	nextHeight := previousBlock.Height + 1
	if b.Height != nextHeight {
		return fmt.Errorf("this block is not the next height, got %d, exp %d", b.Height, nextHeight)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Height)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("%w: parent block hash doesn't match, got %s, exp %s", ErrChainMoved, b.Header.PrevBlockHash, previousBlock.Hash())
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Height)

	if b.Header.Timestamp < previousBlock.Header.Timestamp {
		return fmt.Errorf("block timestamp is before parent block, parent %d, block %d", previousBlock.Header.Timestamp, b.Header.Timestamp)
	}

	return b.validateContents(evHandler)
}

// validateContents checks everything that can be checked without the chain.
func (b Block) validateContents(evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Height)

	if err := b.Header.CheckPOW(); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: transaction count matches", b.Height)

	if int(b.TxCount) != len(b.Trans) {
		return fmt.Errorf("transaction count mismatch, got %d, exp %d", len(b.Trans), b.TxCount)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: coinbase is first and only first", b.Height)

	if len(b.Trans) == 0 || !b.Trans[0].IsCoinbase() {
		return errors.New("first transaction is not a coinbase")
	}
	for i, tx := range b.Trans[1:] {
		for _, in := range tx.TxIns {
			if in.IsCoinbase() {
				return fmt.Errorf("tx[%d] carries a coinbase input", i+1)
			}
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Height)

	ids, err := b.TxIDs()
	if err != nil {
		return err
	}
	root, err := merkle.ComputeRoot(ids)
	if err != nil {
		return err
	}
	if b.Header.MerkleRoot != root {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", root, b.Header.MerkleRoot)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block size matches", b.Height)

	size, err := b.ComputeSize()
	if err != nil {
		return err
	}
	if b.Size != size {
		return fmt.Errorf("block size mismatch, got %d, exp %d", size, b.Size)
	}

	return nil
}

// =============================================================================

// BlockData represents what is handed to storage.
type BlockData struct {
	Hash    string      `json:"hash"`
	Height  uint64      `json:"height"`
	Size    uint64      `json:"size"`
	Header  BlockHeader `json:"header"`
	TxCount uint32      `json:"tx_count"`
	Trans   []Tx        `json:"txs"`
}

// NewBlockData constructs the value to store.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:    block.Hash(),
		Height:  block.Height,
		Size:    block.Size,
		Header:  block.Header,
		TxCount: block.TxCount,
		Trans:   block.Trans,
	}
}

// ToBlock converts a BlockData into a Block.
func ToBlock(blockData BlockData) (Block, error) {
	if blockData.Header.BlockHash == "" {
		blockData.Header.BlockHash = blockData.Hash
	}

	if blockData.Hash != "" && blockData.Hash != blockData.Header.BlockHash {
		return Block{}, fmt.Errorf("stored hash %s does not match header hash %s", blockData.Hash, blockData.Header.BlockHash)
	}

	b := Block{
		Height:  blockData.Height,
		Size:    blockData.Size,
		Header:  blockData.Header,
		TxCount: blockData.TxCount,
		Trans:   blockData.Trans,
	}

	return b, nil
}
