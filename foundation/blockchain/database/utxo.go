package database

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ardanlabs/powchain/foundation/blockchain/script"
)

// ErrMissingOutput is returned when a transaction spends an outpoint that is
// not in the view.
var ErrMissingOutput = errors.New("referenced output is not unspent")

// OutPoint identifies a specific output of a transaction.
type OutPoint struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// UTXO represents an unspent output.
type UTXO struct {
	Amount     uint64        `json:"amount"`
	LockScript script.Script `json:"lock_script"`
	Height     uint64        `json:"height"`
	Coinbase   bool          `json:"coinbase"`
}

// UTXOView represents the behavior required to look up unspent outputs.
type UTXOView interface {
	LookupUTXO(op OutPoint) (UTXO, bool)
}

// =============================================================================

// UTXOSet is a mutable map of unspent outputs. It is not safe for concurrent
// use, the owner provides the locking.
type UTXOSet struct {
	utxos map[OutPoint]UTXO
}

// NewUTXOSet constructs an empty set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{utxos: make(map[OutPoint]UTXO)}
}

// LookupUTXO implements the UTXOView interface.
func (s *UTXOSet) LookupUTXO(op OutPoint) (UTXO, bool) {
	u, exists := s.utxos[op]
	return u, exists
}

// Len returns the number of unspent outputs.
func (s *UTXOSet) Len() int {
	return len(s.utxos)
}

// Add records an unspent output.
func (s *UTXOSet) Add(op OutPoint, u UTXO) {
	s.utxos[op] = u
}

// Spend removes an unspent output.
func (s *UTXOSet) Spend(op OutPoint) {
	delete(s.utxos, op)
}

// Commit applies the changes recorded by an overlay built on this set.
func (s *UTXOSet) Commit(ov *Overlay) {
	for op := range ov.spent {
		delete(s.utxos, op)
	}
	for op, u := range ov.added {
		s.utxos[op] = u
	}
}

// UnspentOutput pairs an outpoint with its output.
type UnspentOutput struct {
	OutPoint OutPoint `json:"outpoint"`
	UTXO     UTXO     `json:"utxo"`
}

// PaidTo returns the outputs locked to the pubkey hash, ordered by outpoint.
func (s *UTXOSet) PaidTo(pubKeyHash []byte) []UnspentOutput {
	var out []UnspentOutput
	for op, u := range s.utxos {
		if u.LockScript.PaysTo(pubKeyHash) {
			out = append(out, UnspentOutput{OutPoint: op, UTXO: u})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OutPoint.TxID != out[j].OutPoint.TxID {
			return out[i].OutPoint.TxID < out[j].OutPoint.TxID
		}
		return out[i].OutPoint.Index < out[j].OutPoint.Index
	})

	return out
}

// =============================================================================

// Overlay is a provisional layer of changes over a base view. The base is
// never modified.
type Overlay struct {
	base  UTXOView
	added map[OutPoint]UTXO
	spent map[OutPoint]struct{}
}

// NewOverlay constructs an empty overlay on the base view.
func NewOverlay(base UTXOView) *Overlay {
	return &Overlay{
		base:  base,
		added: make(map[OutPoint]UTXO),
		spent: make(map[OutPoint]struct{}),
	}
}

// LookupUTXO implements the UTXOView interface.
func (ov *Overlay) LookupUTXO(op OutPoint) (UTXO, bool) {
	if _, spent := ov.spent[op]; spent {
		return UTXO{}, false
	}
	if u, exists := ov.added[op]; exists {
		return u, true
	}
	return ov.base.LookupUTXO(op)
}

// Spend marks the outpoint as consumed.
func (ov *Overlay) Spend(op OutPoint) {
	delete(ov.added, op)
	ov.spent[op] = struct{}{}
}

// Add records a new unspent output.
func (ov *Overlay) Add(op OutPoint, u UTXO) {
	delete(ov.spent, op)
	ov.added[op] = u
}

// ApplyTx consumes the outputs spent by the transaction and adds its new
// outputs. A coinbase spends nothing. On error the overlay is unchanged.
func (ov *Overlay) ApplyTx(tx Tx, height uint64) error {
	id, err := tx.ID()
	if err != nil {
		return err
	}

	coinbase := tx.IsCoinbase()
	if !coinbase {
		seen := make(map[OutPoint]struct{}, len(tx.TxIns))
		for _, in := range tx.TxIns {
			op := in.OutPoint()
			if _, dup := seen[op]; dup {
				return fmt.Errorf("%w: %s spent twice", ErrMissingOutput, op)
			}
			seen[op] = struct{}{}

			if _, exists := ov.LookupUTXO(op); !exists {
				return fmt.Errorf("%w: %s", ErrMissingOutput, op)
			}
		}

		for op := range seen {
			ov.Spend(op)
		}
	}

	for i, out := range tx.TxOuts {
		u := UTXO{
			Amount:     out.Amount,
			LockScript: out.ScriptPubKey,
			Height:     height,
			Coinbase:   coinbase,
		}
		ov.Add(OutPoint{TxID: id, Index: uint32(i)}, u)
	}

	return nil
}
