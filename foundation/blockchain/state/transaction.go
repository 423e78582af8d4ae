package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/powchain/foundation/events"
)

// SubmitTransaction accepts a transaction from a wallet for inclusion. The
// transaction is shared with the network and mining is signaled.
func (s *State) SubmitTransaction(tx database.Tx) (mempool.Entry, error) {
	entry, err := s.admit(tx)
	if err != nil {
		return mempool.Entry{}, err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return entry, nil
}

// ProcessPeerTransaction accepts a transaction received from a peer for
// inclusion. Peer transactions are not shared again.
func (s *State) ProcessPeerTransaction(tx database.Tx) (mempool.Entry, error) {
	entry, err := s.admit(tx)
	if err != nil {
		return mempool.Entry{}, err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return entry, nil
}

// =============================================================================

// admit runs mempool admission and records the outcome.
func (s *State) admit(tx database.Tx) (mempool.Entry, error) {
	entry, err := s.mempool.Add(tx)
	s.metrics.SetMempoolSize(s.mempool.Count())

	if err != nil {
		s.metrics.ObserveAdmission(Classify(err).String())
		s.evHandler("state: admit: REJECTED: %s", err)
		return mempool.Entry{}, err
	}

	s.metrics.ObserveAdmission("accepted")

	s.evHandler("state: admit: ACCEPTED: tx[%s]: fee[%d]: size[%d]", entry.ID, entry.Fee, entry.Size)
	s.publisher.Publish(events.Event{Kind: events.KindTxAdmitted, TxID: entry.ID, Fee: entry.Fee})

	return entry, nil
}

// PruneMempool drops transactions that have been pooled longer than the
// configured expiry along with anything spending their outputs.
func (s *State) PruneMempool() []string {
	evicted := s.mempool.Cleanup()
	s.metrics.SetMempoolSize(s.mempool.Count())

	return evicted
}
