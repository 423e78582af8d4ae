package kvstore

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// blockRecord is the stored form of a block. Transactions are kept in their
// binary serialization.
type blockRecord struct {
	Hash          string   `msgpack:"hash"`
	Height        uint64   `msgpack:"height"`
	Size          uint64   `msgpack:"size"`
	Version       uint32   `msgpack:"version"`
	PrevBlockHash string   `msgpack:"prev_block_hash"`
	MerkleRoot    string   `msgpack:"merkle_root"`
	Timestamp     uint32   `msgpack:"timestamp"`
	Bits          uint32   `msgpack:"bits"`
	Nonce         uint32   `msgpack:"nonce"`
	TxCount       uint32   `msgpack:"tx_count"`
	Txs           [][]byte `msgpack:"txs"`
}

// newBlockRecord returns the record along with the transaction ids in
// block order.
func newBlockRecord(bd database.BlockData) (blockRecord, []string, error) {
	rec := blockRecord{
		Hash:          bd.Hash,
		Height:        bd.Height,
		Size:          bd.Size,
		Version:       bd.Header.Version,
		PrevBlockHash: bd.Header.PrevBlockHash,
		MerkleRoot:    bd.Header.MerkleRoot,
		Timestamp:     bd.Header.Timestamp,
		Bits:          uint32(bd.Header.Bits),
		Nonce:         bd.Header.Nonce,
		TxCount:       bd.TxCount,
		Txs:           make([][]byte, len(bd.Trans)),
	}

	ids := make([]string, len(bd.Trans))
	for i, tx := range bd.Trans {
		raw, err := tx.Serialize()
		if err != nil {
			return blockRecord{}, nil, fmt.Errorf("tx[%d]: %w", i, err)
		}
		id, err := tx.ID()
		if err != nil {
			return blockRecord{}, nil, fmt.Errorf("tx[%d]: %w", i, err)
		}
		rec.Txs[i] = raw
		ids[i] = id
	}

	return rec, ids, nil
}

func (rec blockRecord) toBlockData() (database.BlockData, error) {
	trans := make([]database.Tx, len(rec.Txs))
	for i, raw := range rec.Txs {
		tx, err := database.DecodeTx(raw)
		if err != nil {
			return database.BlockData{}, fmt.Errorf("block %d: tx[%d]: %w", rec.Height, i, err)
		}
		trans[i] = tx
	}

	bd := database.BlockData{
		Hash:   rec.Hash,
		Height: rec.Height,
		Size:   rec.Size,
		Header: database.BlockHeader{
			Version:       rec.Version,
			PrevBlockHash: rec.PrevBlockHash,
			MerkleRoot:    rec.MerkleRoot,
			Timestamp:     rec.Timestamp,
			Bits:          database.Bits(rec.Bits),
			Nonce:         rec.Nonce,
			BlockHash:     rec.Hash,
		},
		TxCount: rec.TxCount,
		Trans:   trans,
	}

	return bd, nil
}
