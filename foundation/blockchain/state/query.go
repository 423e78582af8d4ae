package state

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/merkle"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// TxRecord represents a transaction and where it was found.
type TxRecord struct {
	Tx        database.Tx `json:"tx"`
	Confirmed bool        `json:"confirmed"`
	Height    uint64      `json:"height"`
	Index     int         `json:"index"`
}

// TxProof represents the information needed to prove a transaction is part
// of a block without the rest of the block.
type TxProof struct {
	TxID       string   `json:"tx_id"`
	Height     uint64   `json:"height"`
	Index      int      `json:"index"`
	MerkleRoot string   `json:"merkle_root"`
	Path       []string `json:"path"`
}

// Verify checks the proof reproduces the merkle root.
func (p TxProof) Verify() bool {
	return merkle.VerifyInclusion(p.TxID, p.MerkleRoot, p.Path, p.Index)
}

// Balance represents the confirmed outputs spendable by a pubkey hash.
type Balance struct {
	Confirmed uint64                   `json:"confirmed"`
	Outputs   []database.UnspentOutput `json:"outputs"`
}

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByHeight returns the set of blocks based on block heights. This
// function reads the blockchain from storage.
func (s *State) QueryBlocksByHeight(from uint64, to uint64) []database.Block {
	latest := s.RetrieveLatestBlock()

	if from == QueryLatest {
		from = latest.Height
		to = from
	}
	if to == QueryLatest || to > latest.Height {
		to = latest.Height
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByHeight: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlockByHeight returns the block at the specified height.
func (s *State) QueryBlockByHeight(height uint64) (database.Block, error) {
	if height == QueryLatest {
		return s.RetrieveLatestBlock(), nil
	}
	return s.db.GetBlock(height)
}

// QueryTx looks for the transaction in the confirmed chain first and then
// in the mempool.
func (s *State) QueryTx(id string) (TxRecord, error) {
	tx, loc, err := s.db.FindTx(id)
	if err == nil {
		return TxRecord{Tx: tx, Confirmed: true, Height: loc.Height, Index: loc.Index}, nil
	}

	for _, e := range s.mempool.Entries() {
		if e.ID == id {
			return TxRecord{Tx: e.Tx}, nil
		}
	}

	return TxRecord{}, err
}

// QueryTxProof builds the merkle inclusion proof for a confirmed transaction.
func (s *State) QueryTxProof(id string) (TxProof, error) {
	_, loc, err := s.db.FindTx(id)
	if err != nil {
		return TxProof{}, err
	}

	block, err := s.db.GetBlock(loc.Height)
	if err != nil {
		return TxProof{}, err
	}

	ids, err := block.TxIDs()
	if err != nil {
		return TxProof{}, err
	}

	path, err := merkle.InclusionPath(ids, loc.Index)
	if err != nil {
		return TxProof{}, fmt.Errorf("tx %s: %w", id, err)
	}

	proof := TxProof{
		TxID:       id,
		Height:     loc.Height,
		Index:      loc.Index,
		MerkleRoot: block.Header.MerkleRoot,
		Path:       path,
	}

	return proof, nil
}

// QueryBalance returns the confirmed unspent outputs locked to the pubkey
// hash and their total.
func (s *State) QueryBalance(pubKeyHash []byte) Balance {
	outputs := s.db.PaidTo(pubKeyHash)

	var total uint64
	for _, o := range outputs {
		total = addCapped(total, o.UTXO.Amount)
	}

	return Balance{Confirmed: total, Outputs: outputs}
}
