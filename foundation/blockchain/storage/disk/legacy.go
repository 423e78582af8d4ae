package disk

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// legacyBlock is the block layout written by earlier nodes which used
// capitalized envelope keys.
type legacyBlock struct {
	Height      uint64        `json:"Height"`
	Blockheader legacyHeader  `json:"Blockheader"`
	Txcount     uint32        `json:"Txcount"`
	Txs         []database.Tx `json:"Txs"`
}

type legacyHeader struct {
	Version           uint32        `json:"version"`
	PreviousBlockHash string        `json:"previous_block_hash"`
	MerkleRoot        string        `json:"merkle_root"`
	Timestamp         uint32        `json:"timestamp"`
	Bits              database.Bits `json:"bits"`
	Nonce             uint32        `json:"nonce"`
	BlockHash         string        `json:"blockhash"`
}

// Decode reads a stored block in either the current or the legacy layout.
func Decode(data []byte) (database.BlockData, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return database.BlockData{}, fmt.Errorf("%w: %w", database.ErrMalformed, err)
	}

	if _, legacy := keys["Blockheader"]; !legacy {
		var blockData database.BlockData
		if err := json.Unmarshal(data, &blockData); err != nil {
			return database.BlockData{}, fmt.Errorf("%w: %w", database.ErrMalformed, err)
		}
		return blockData, nil
	}

	var lb legacyBlock
	if err := json.Unmarshal(data, &lb); err != nil {
		return database.BlockData{}, fmt.Errorf("%w: legacy block: %w", database.ErrMalformed, err)
	}

	blockData := database.BlockData{
		Hash:   lb.Blockheader.BlockHash,
		Height: lb.Height,
		Header: database.BlockHeader{
			Version:       lb.Blockheader.Version,
			PrevBlockHash: lb.Blockheader.PreviousBlockHash,
			MerkleRoot:    lb.Blockheader.MerkleRoot,
			Timestamp:     lb.Blockheader.Timestamp,
			Bits:          lb.Blockheader.Bits,
			Nonce:         lb.Blockheader.Nonce,
			BlockHash:     lb.Blockheader.BlockHash,
		},
		TxCount: lb.Txcount,
		Trans:   lb.Txs,
	}

	// Earlier nodes did not always record the count.
	if blockData.TxCount == 0 {
		blockData.TxCount = uint32(len(lb.Txs))
	}

	// Earlier nodes measured the size of the json text, not the serialized
	// block.
	size, err := database.Block{Trans: lb.Txs}.ComputeSize()
	if err != nil {
		return database.BlockData{}, fmt.Errorf("%w: legacy block: %w", database.ErrMalformed, err)
	}
	blockData.Size = size

	return blockData, nil
}
