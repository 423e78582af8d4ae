// Package codec provides the binary encoding helpers shared by the
// transaction, block and merkle code.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrInvalidHash is returned when a display hash is not 64 hex characters.
var ErrInvalidHash = errors.New("invalid hash")

// pver is the protocol version handed to the wire helpers. The varint
// encoding does not change across versions.
const pver = 0

// =============================================================================

// WriteVarInt writes n using the compact variable length integer encoding.
func WriteVarInt(w io.Writer, n uint64) error {
	return wire.WriteVarInt(w, pver, n)
}

// ReadVarInt reads a compact variable length integer. Non canonical
// encodings are rejected.
func ReadVarInt(r io.Reader) (uint64, error) {
	return wire.ReadVarInt(r, pver)
}

// VarIntSize returns the number of bytes WriteVarInt uses for n.
func VarIntSize(n uint64) int {
	return wire.VarIntSerializeSize(n)
}

// =============================================================================

// HashFromHex converts a display hash into its internal byte order.
func HashFromHex(s string) (chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return chainhash.Hash{}, fmt.Errorf("%w: length %d, exp %d", ErrInvalidHash, len(s), chainhash.MaxHashStringSize)
	}

	if _, err := hex.DecodeString(s); err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrInvalidHash, err)
	}

	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %s", ErrInvalidHash, err)
	}

	return *h, nil
}

// HashToHex converts a hash in internal byte order into display form.
func HashToHex(h chainhash.Hash) string {
	return h.String()
}
