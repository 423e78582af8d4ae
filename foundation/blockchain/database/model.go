package database

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/validate"
)

// TxInRequest is what a caller submits to describe an input.
type TxInRequest struct {
	PrevTxID  string        `json:"prev_tx" validate:"required,len=64,hexadecimal"`
	PrevIndex *uint32       `json:"prev_index" validate:"required"`
	ScriptSig script.Script `json:"script_sig"`
	Sequence  *uint32       `json:"sequence"`
}

// TxOutRequest is what a caller submits to describe an output.
type TxOutRequest struct {
	Amount       *int64        `json:"amount" validate:"required"`
	ScriptPubKey script.Script `json:"script_pubkey"`
}

// TxRequest is what a caller submits to describe a transaction.
type TxRequest struct {
	Version  uint32         `json:"version"`
	TxIns    []TxInRequest  `json:"tx_ins" validate:"required,min=1,dive"`
	TxOuts   []TxOutRequest `json:"tx_outs" validate:"dive"`
	Locktime uint32         `json:"locktime"`
}

// DecodeTxJSON decodes and validates a transaction submitted as JSON. Any
// problem with the document is reported as ErrMalformed, before the
// transaction is ever handed to a verifier.
func DecodeTxJSON(data []byte) (Tx, error) {
	var req TxRequest

	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	if err := d.Decode(&req); err != nil {
		return Tx{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := validate.Check(req); err != nil {
		return Tx{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return req.ToTx()
}

// ToTx converts the request into a transaction. Amounts below zero fail
// with ErrNegativeAmount.
func (req TxRequest) ToTx() (Tx, error) {
	ins := make([]TxIn, len(req.TxIns))
	for i, r := range req.TxIns {
		in, err := NewTxIn(r.PrevTxID, *r.PrevIndex, r.ScriptSig)
		if err != nil {
			return Tx{}, fmt.Errorf("%w: input[%d]: %w", ErrMalformed, i, err)
		}
		if r.Sequence != nil {
			in.Sequence = *r.Sequence
		}
		ins[i] = in
	}

	outs := make([]TxOut, len(req.TxOuts))
	for i, r := range req.TxOuts {
		out, err := NewTxOut(*r.Amount, r.ScriptPubKey)
		if err != nil {
			return Tx{}, fmt.Errorf("output[%d]: %w", i, err)
		}
		outs[i] = out
	}

	tx := Tx{
		Version:  req.Version,
		TxIns:    ins,
		TxOuts:   outs,
		Locktime: req.Locktime,
	}

	return tx, nil
}
