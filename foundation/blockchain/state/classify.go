package state

import (
	"errors"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/powchain/foundation/blockchain/merkle"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
)

// ErrorKind groups the errors returned by the core so callers can decide
// how to report them.
type ErrorKind int

// Set of error kinds.
const (
	KindUnknown ErrorKind = iota
	KindMalformed
	KindConstruction
	KindRejected
	KindNotFound
	KindResource
	KindMiningExhausted
	KindStorage
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "unknown",
	KindMalformed:       "malformed",
	KindConstruction:    "construction",
	KindRejected:        "rejected",
	KindNotFound:        "not_found",
	KindResource:        "resource",
	KindMiningExhausted: "mining_exhausted",
	KindStorage:         "storage",
}

// String implements the fmt.Stringer interface.
func (k ErrorKind) String() string {
	return kindNames[k]
}

// Classify maps an error returned by the core onto its kind. Storage is
// checked first since storage failures wrap whatever the backend returned.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown

	case errors.Is(err, database.ErrStorage):
		return KindStorage

	case errors.Is(err, database.ErrMalformed),
		errors.Is(err, script.ErrMalformed):
		return KindMalformed

	case errors.Is(err, database.ErrNegativeAmount),
		errors.Is(err, database.ErrInvalidHash):
		return KindConstruction

	case errors.Is(err, mempool.ErrPoolFull):
		return KindResource

	case errors.Is(err, database.ErrNonceExhausted):
		return KindMiningExhausted

	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, merkle.ErrOutOfBounds),
		errors.Is(err, merkle.ErrNoLeaves):
		return KindNotFound

	case errors.Is(err, ErrBlockRejected),
		errors.Is(err, verifier.ErrValidation),
		errors.Is(err, mempool.ErrAlreadyExists),
		errors.Is(err, mempool.ErrMissingInputs),
		errors.Is(err, mempool.ErrNegativeFee),
		errors.Is(err, mempool.ErrCoinbase),
		errors.Is(err, database.ErrMissingOutput),
		errors.Is(err, database.ErrChainMoved),
		errors.Is(err, database.ErrInvalidPOW):
		return KindRejected
	}

	return KindUnknown
}
