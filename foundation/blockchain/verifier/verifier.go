// Package verifier validates transactions against a view of unspent outputs.
// An invalid transaction is an expected outcome, so the boolean API never
// returns an error and the error API only ever wraps ErrValidation.
package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
)

// ErrValidation is matched by every failure returned from this package.
var ErrValidation = errors.New("transaction failed validation")

// Failure describes why a transaction was rejected. Input is -1 when the
// failure is not tied to a specific input.
type Failure struct {
	Reason string
	Input  int
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Input < 0 {
		return f.Reason
	}
	return fmt.Sprintf("input[%d]: %s", f.Input, f.Reason)
}

// Is allows errors.Is to match any failure against ErrValidation.
func (f *Failure) Is(target error) bool {
	return target == ErrValidation
}

func fail(input int, format string, args ...any) error {
	return &Failure{Reason: fmt.Sprintf(format, args...), Input: input}
}

// =============================================================================

// Mode selects how unlock scripts are checked.
type Mode int

// Set of verification modes.
const (
	Production Mode = iota
	Development
)

// String implements the fmt.Stringer interface.
func (m Mode) String() string {
	switch m {
	case Production:
		return "production"
	case Development:
		return "development"
	}
	return "unknown"
}

// Verifier checks transactions. It holds no state beyond its configuration
// and is safe for concurrent use.
type Verifier struct {
	mode Mode
	sigs signature.Verifier
}

// New constructs a production verifier. Every input must unlock a P2PKH
// output with a signature accepted by sigs. A nil sigs uses secp256k1.
func New(sigs signature.Verifier) *Verifier {
	if sigs == nil {
		sigs = signature.Secp256k1{}
	}

	return &Verifier{
		mode: Production,
		sigs: sigs,
	}
}

// NewDevelopment constructs a verifier that accepts any unlock script. The
// structural and balance checks still apply.
func NewDevelopment() *Verifier {
	return &Verifier{
		mode: Development,
	}
}

// Mode returns the mode the verifier was constructed with.
func (v *Verifier) Mode() Mode {
	return v.mode
}

// Verify reports whether the transaction is valid against the view.
func (v *Verifier) Verify(tx database.Tx, view database.UTXOView) bool {
	_, err := v.Check(tx, view)
	return err == nil
}

// Check validates the transaction against the view and returns the fee it
// pays. A coinbase transaction is checked with the baseline coinbase rules
// and pays no fee.
func (v *Verifier) Check(tx database.Tx, view database.UTXOView) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, v.CheckCoinbase(tx, CoinbaseRules{})
	}

	if err := checkStructure(tx); err != nil {
		return 0, err
	}

	var in uint64
	for i, txIn := range tx.TxIns {
		utxo, exists := view.LookupUTXO(txIn.OutPoint())
		if !exists {
			return 0, fail(i, "output %s is not unspent", txIn.OutPoint())
		}

		if v.mode == Production {
			if err := v.checkUnlock(tx, i, utxo.LockScript); err != nil {
				return 0, err
			}
		}

		var carry uint64
		in, carry = bits.Add64(in, utxo.Amount, 0)
		if carry != 0 {
			return 0, fail(i, "input amounts overflow")
		}
	}

	out, err := tx.OutputSum()
	if err != nil {
		return 0, fail(-1, "%s", err)
	}

	if in < out {
		return 0, fail(-1, "outputs %d exceed inputs %d", out, in)
	}

	return in - out, nil
}

// checkStructure applies the rules that need no view.
func checkStructure(tx database.Tx) error {
	if len(tx.TxIns) == 0 {
		return fail(-1, "transaction has no inputs")
	}

	if len(tx.TxOuts) == 0 {
		return fail(-1, "transaction has no outputs")
	}

	seen := make(map[database.OutPoint]struct{}, len(tx.TxIns))
	for i, txIn := range tx.TxIns {
		if txIn.IsCoinbase() {
			return fail(i, "coinbase input in a regular transaction")
		}

		op := txIn.OutPoint()
		if _, dup := seen[op]; dup {
			return fail(i, "output %s is spent twice", op)
		}
		seen[op] = struct{}{}
	}

	return nil
}

// checkUnlock confirms the input's unlock script satisfies a P2PKH lock.
func (v *Verifier) checkUnlock(tx database.Tx, index int, lock script.Script) error {
	pkh, ok := lock.PubKeyHash()
	if !ok {
		return fail(index, "unsupported lock script %s", lock)
	}

	sig, pubKey, ok := tx.TxIns[index].ScriptSig.SigAndPubKey()
	if !ok {
		return fail(index, "unlock script is not a signature and public key")
	}

	if !bytes.Equal(signature.ShortHash(pubKey), pkh) {
		return fail(index, "public key does not match the locked hash")
	}

	digest, err := tx.SigHash(index, lock, database.SigHashAll)
	if err != nil {
		return fail(index, "%s", err)
	}

	if !v.sigs.Verify(pubKey, sig, digest) {
		return fail(index, "signature does not verify")
	}

	return nil
}

// =============================================================================

// CoinbaseRules enables the stricter coinbase checks. The zero value applies
// only the baseline rules.
type CoinbaseRules struct {
	Height      uint64 // Height the script must commit to when CheckHeight is set.
	CheckHeight bool
	MaxReward   uint64 // Upper bound on the outputs when CheckReward is set.
	CheckReward bool
}

// VerifyCoinbase reports whether the transaction passes the baseline
// coinbase rules.
func (v *Verifier) VerifyCoinbase(tx database.Tx) bool {
	return v.CheckCoinbase(tx, CoinbaseRules{}) == nil
}

// CheckCoinbase validates a coinbase transaction. It must have exactly one
// input carrying the coinbase sentinel, at least one output and a non empty
// unlock script.
func (v *Verifier) CheckCoinbase(tx database.Tx, rules CoinbaseRules) error {
	if len(tx.TxIns) != 1 || !tx.TxIns[0].IsCoinbase() {
		return fail(-1, "coinbase must have exactly one coinbase input")
	}

	if len(tx.TxOuts) == 0 {
		return fail(-1, "coinbase has no outputs")
	}

	scriptSig := tx.TxIns[0].ScriptSig
	if scriptSig.Empty() {
		return fail(0, "coinbase unlock script is empty")
	}

	if rules.CheckHeight {
		height, ok := script.CoinbaseHeight(scriptSig)
		if !ok || height != rules.Height {
			return fail(0, "coinbase does not commit to height %d", rules.Height)
		}
	}

	if rules.CheckReward {
		total, err := tx.OutputSum()
		if err != nil {
			return fail(-1, "%s", err)
		}
		if total > rules.MaxReward {
			return fail(-1, "coinbase pays %d, allowed %d", total, rules.MaxReward)
		}
	}

	return nil
}
