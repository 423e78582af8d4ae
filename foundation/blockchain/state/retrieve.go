package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	block, _ := s.db.LatestBlock()
	return block
}

// RetrieveMempool returns a copy of the mempool in selection order.
func (s *State) RetrieveMempool() []mempool.Entry {
	return s.mempool.Entries()
}

// RetrieveMinerPKH returns a copy of the pubkey hash receiving rewards.
func (s *State) RetrieveMinerPKH() []byte {
	return append([]byte{}, s.minerPKH...)
}
