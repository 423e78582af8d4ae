package database

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ardanlabs/powchain/foundation/blockchain/codec"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Set of error variables for constructing and decoding transactions.
var (
	ErrNegativeAmount = errors.New("output amount is negative")
	ErrMalformed      = errors.New("malformed input")
	ErrInvalidHash    = codec.ErrInvalidHash
)

// Values marking the single input of a coinbase transaction.
const (
	CoinbasePrevIndex uint32 = 0xffffffff
	DefaultSequence   uint32 = 0xffffffff
)

// SigHashAll is the only supported signature hash type. It commits to every
// input and output of the transaction.
const SigHashAll uint32 = 1

// maxTxElements bounds the input and output counts read while decoding so a
// corrupt count can't trigger a huge allocation.
const maxTxElements = 100_000

// =============================================================================

// TxIn represents a reference to an output being spent.
type TxIn struct {
	PrevTxID  string        `json:"prev_tx"`    // Display form id of the transaction holding the output.
	PrevIndex uint32        `json:"prev_index"` // Position of the output being spent.
	ScriptSig script.Script `json:"script_sig"` // Unlocks the referenced output.
	Sequence  uint32        `json:"sequence"`
}

// NewTxIn constructs an input spending the specified output.
func NewTxIn(prevTxID string, prevIndex uint32, scriptSig script.Script) (TxIn, error) {
	if _, err := codec.HashFromHex(prevTxID); err != nil {
		return TxIn{}, err
	}

	txIn := TxIn{
		PrevTxID:  prevTxID,
		PrevIndex: prevIndex,
		ScriptSig: scriptSig,
		Sequence:  DefaultSequence,
	}

	return txIn, nil
}

// IsCoinbase reports whether the input carries the coinbase sentinel values.
func (in TxIn) IsCoinbase() bool {
	return in.PrevTxID == signature.ZeroHash && in.PrevIndex == CoinbasePrevIndex
}

// OutPoint returns the outpoint this input spends.
func (in TxIn) OutPoint() OutPoint {
	return OutPoint{TxID: in.PrevTxID, Index: in.PrevIndex}
}

// TxOut represents an amount locked by a script.
type TxOut struct {
	Amount       uint64        `json:"amount"`        // Satoshi count.
	ScriptPubKey script.Script `json:"script_pubkey"` // Conditions for spending this output.
}

// NewTxOut constructs an output. Negative amounts are rejected.
func NewTxOut(amount int64, lock script.Script) (TxOut, error) {
	if amount < 0 {
		return TxOut{}, fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	return TxOut{Amount: uint64(amount), ScriptPubKey: lock}, nil
}

// =============================================================================

// Tx represents a transaction moving value from a set of unspent outputs
// into a set of new outputs.
type Tx struct {
	Version  uint32  `json:"version"`
	TxIns    []TxIn  `json:"tx_ins"`
	TxOuts   []TxOut `json:"tx_outs"`
	Locktime uint32  `json:"locktime"`
}

// NewTx constructs a version 1 transaction.
func NewTx(ins []TxIn, outs []TxOut) Tx {
	return Tx{
		Version: 1,
		TxIns:   append([]TxIn{}, ins...),
		TxOuts:  append([]TxOut{}, outs...),
	}
}

// NewCoinbaseTx constructs the reward transaction for a block at the
// specified height.
func NewCoinbaseTx(height uint64, amount uint64, lock script.Script, message string) Tx {
	in := TxIn{
		PrevTxID:  signature.ZeroHash,
		PrevIndex: CoinbasePrevIndex,
		ScriptSig: script.CoinbaseScript(height, message),
		Sequence:  DefaultSequence,
	}

	out := TxOut{
		Amount:       amount,
		ScriptPubKey: lock,
	}

	return NewTx([]TxIn{in}, []TxOut{out})
}

// IsCoinbase reports whether this is a coinbase transaction, meaning it has
// exactly one input and that input is the coinbase sentinel.
func (tx Tx) IsCoinbase() bool {
	return len(tx.TxIns) == 1 && tx.TxIns[0].IsCoinbase()
}

// Serialize returns the canonical binary form used for the id and signing.
func (tx Tx) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the double hash of the serialized transaction.
func (tx Tx) Hash() (chainhash.Hash, error) {
	b, err := tx.Serialize()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return signature.DoubleHash(b), nil
}

// ID returns the display form of the transaction hash.
func (tx Tx) ID() (string, error) {
	h, err := tx.Hash()
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// Size returns the serialized size of the transaction in bytes.
func (tx Tx) Size() (int, error) {
	b, err := tx.Serialize()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// OutputSum returns the total of all output amounts.
func (tx Tx) OutputSum() (uint64, error) {
	var sum uint64
	for i, out := range tx.TxOuts {
		if out.Amount > math.MaxUint64-sum {
			return 0, fmt.Errorf("output[%d]: amount overflows the sum", i)
		}
		sum += out.Amount
	}
	return sum, nil
}

// SigHash returns the digest signed for the input at index. The digest
// covers a copy of the transaction where the input being signed carries the
// lock script of the output it spends and every other input has an empty
// script. The receiver is never modified.
func (tx Tx) SigHash(index int, lock script.Script, hashType uint32) (chainhash.Hash, error) {
	if index < 0 || index >= len(tx.TxIns) {
		return chainhash.Hash{}, fmt.Errorf("input index %d out of range", index)
	}

	cp := tx.copy()
	for i := range cp.TxIns {
		cp.TxIns[i].ScriptSig = script.Script{}
	}
	cp.TxIns[index].ScriptSig = lock

	var buf bytes.Buffer
	if err := cp.encode(&buf); err != nil {
		return chainhash.Hash{}, err
	}

	var ht [4]byte
	binary.LittleEndian.PutUint32(ht[:], hashType)
	buf.Write(ht[:])

	return signature.DoubleHash(buf.Bytes()), nil
}

// SignInput returns a new transaction where the input at index carries a
// P2PKH unlock script signed by the signer.
func (tx Tx) SignInput(index int, lock script.Script, signer signature.Signer) (Tx, error) {
	digest, err := tx.SigHash(index, lock, SigHashAll)
	if err != nil {
		return Tx{}, err
	}

	sig, pubKey, err := signer.Sign(digest)
	if err != nil {
		return Tx{}, fmt.Errorf("signing input %d: %w", index, err)
	}

	cp := tx.copy()
	cp.TxIns[index].ScriptSig = script.P2PKHUnlock(sig, pubKey)

	return cp, nil
}

// copy returns a transaction with its own input and output slices.
func (tx Tx) copy() Tx {
	return Tx{
		Version:  tx.Version,
		TxIns:    append([]TxIn{}, tx.TxIns...),
		TxOuts:   append([]TxOut{}, tx.TxOuts...),
		Locktime: tx.Locktime,
	}
}

// =============================================================================

// encode writes the canonical layout:
// version | varint(#in) | inputs | varint(#out) | outputs | locktime
func (tx Tx) encode(w io.Writer) error {
	if err := writeUint32(w, tx.Version); err != nil {
		return err
	}

	if err := codec.WriteVarInt(w, uint64(len(tx.TxIns))); err != nil {
		return err
	}
	for i, in := range tx.TxIns {
		prev, err := codec.HashFromHex(in.PrevTxID)
		if err != nil {
			return fmt.Errorf("input[%d]: %w", i, err)
		}
		if _, err := w.Write(prev[:]); err != nil {
			return err
		}
		if err := writeUint32(w, in.PrevIndex); err != nil {
			return err
		}
		if err := writeScript(w, in.ScriptSig); err != nil {
			return err
		}
		if err := writeUint32(w, in.Sequence); err != nil {
			return err
		}
	}

	if err := codec.WriteVarInt(w, uint64(len(tx.TxOuts))); err != nil {
		return err
	}
	for _, out := range tx.TxOuts {
		var amt [8]byte
		binary.LittleEndian.PutUint64(amt[:], out.Amount)
		if _, err := w.Write(amt[:]); err != nil {
			return err
		}
		if err := writeScript(w, out.ScriptPubKey); err != nil {
			return err
		}
	}

	return writeUint32(w, tx.Locktime)
}

// DecodeTx parses the canonical binary form of a transaction. Trailing bytes
// are rejected.
func DecodeTx(b []byte) (Tx, error) {
	r := bytes.NewReader(b)

	tx, err := decodeTx(r)
	if err != nil {
		return Tx{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if r.Len() != 0 {
		return Tx{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}

	return tx, nil
}

func decodeTx(r *bytes.Reader) (Tx, error) {
	var tx Tx
	var err error

	if tx.Version, err = readUint32(r); err != nil {
		return Tx{}, err
	}

	nIn, err := readCount(r)
	if err != nil {
		return Tx{}, err
	}
	tx.TxIns = make([]TxIn, nIn)
	for i := range tx.TxIns {
		var prev chainhash.Hash
		if _, err := io.ReadFull(r, prev[:]); err != nil {
			return Tx{}, err
		}
		tx.TxIns[i].PrevTxID = prev.String()

		if tx.TxIns[i].PrevIndex, err = readUint32(r); err != nil {
			return Tx{}, err
		}
		if tx.TxIns[i].ScriptSig, err = readScript(r); err != nil {
			return Tx{}, err
		}
		if tx.TxIns[i].Sequence, err = readUint32(r); err != nil {
			return Tx{}, err
		}
	}

	nOut, err := readCount(r)
	if err != nil {
		return Tx{}, err
	}
	tx.TxOuts = make([]TxOut, nOut)
	for i := range tx.TxOuts {
		var amt [8]byte
		if _, err := io.ReadFull(r, amt[:]); err != nil {
			return Tx{}, err
		}
		tx.TxOuts[i].Amount = binary.LittleEndian.Uint64(amt[:])

		if tx.TxOuts[i].ScriptPubKey, err = readScript(r); err != nil {
			return Tx{}, err
		}
	}

	if tx.Locktime, err = readUint32(r); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeScript(w io.Writer, s script.Script) error {
	b := s.Serialize()
	if err := codec.WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readScript(r *bytes.Reader) (script.Script, error) {
	n, err := codec.ReadVarInt(r)
	if err != nil {
		return script.Script{}, err
	}
	if n > uint64(r.Len()) {
		return script.Script{}, fmt.Errorf("script length %d overruns transaction", n)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return script.Script{}, err
	}

	return script.Parse(b)
}

func readCount(r *bytes.Reader) (int, error) {
	n, err := codec.ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if n > maxTxElements {
		return 0, fmt.Errorf("element count %d exceeds %d", n, maxTxElements)
	}
	return int(n), nil
}
