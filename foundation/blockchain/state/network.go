package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// NetSendBlockToPeers takes the new mined block and sends it to all known
// peers. Nothing is sent when the node runs without a network.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	if s.network == nil {
		return nil
	}

	s.evHandler("state: NetSendBlockToPeers: started: blk[%d]", block.Height)
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	return s.network.BroadcastBlock(block)
}

// NetSendTxToPeers shares a newly admitted transaction with the known peers.
// Failures are only reported since the transaction is already in the mempool.
func (s *State) NetSendTxToPeers(tx database.Tx) {
	if s.network == nil {
		return
	}

	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	if err := s.network.BroadcastTx(tx); err != nil {
		s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
	}
}
