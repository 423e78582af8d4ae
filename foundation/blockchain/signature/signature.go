// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros in display form. It is used as the
// previous block hash of the genesis block, the previous transaction id of a
// coinbase input and the merkle root of an empty transaction list.
const ZeroHash string = "0000000000000000000000000000000000000000000000000000000000000000"

// DigestSize is the size in bytes of every digest produced by DoubleHash.
const DigestSize = chainhash.HashSize

// =============================================================================

// DoubleHash returns SHA256(SHA256(data)). The bytes are in internal order,
// call String on the result for the byte-reversed display hex.
func DoubleHash(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}

// ShortHash returns RIPEMD160(SHA256(data)). This is the 20 byte hash used to
// match a public key against a pay-to-pubkey-hash lock script.
func ShortHash(data []byte) []byte {
	return btcutil.Hash160(data)
}

// =============================================================================

// Verifier represents the behavior required to check a signature produced
// over a 32 byte digest.
type Verifier interface {
	Verify(pubKey []byte, sig []byte, digest chainhash.Hash) bool
}

// Signer represents the behavior required to sign a 32 byte digest. The
// public key returned must be accepted by the matching Verifier.
type Signer interface {
	Sign(digest chainhash.Hash) (sig []byte, pubKey []byte, err error)
}

// =============================================================================

// Secp256k1 verifies ECDSA signatures over the secp256k1 curve. Signatures
// are the 64 byte [R || S] form with an optional trailing recovery byte.
type Secp256k1 struct{}

// Verify implements the Verifier interface.
func (Secp256k1) Verify(pubKey []byte, sig []byte, digest chainhash.Hash) bool {
	switch len(sig) {
	case crypto.SignatureLength:
		sig = sig[:crypto.RecoveryIDOffset]
	case crypto.RecoveryIDOffset:
	default:
		return false
	}

	if len(pubKey) == 0 {
		return false
	}

	return crypto.VerifySignature(pubKey, digest[:], sig)
}

// KeySigner signs digests with an ECDSA private key on the secp256k1 curve.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
}

// NewKeySigner constructs a signer from a hex encoded private key.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return &KeySigner{privateKey: pk}, nil
}

// NewKeySignerFromECDSA constructs a signer around an existing private key.
func NewKeySignerFromECDSA(pk *ecdsa.PrivateKey) (*KeySigner, error) {
	if pk == nil {
		return nil, errors.New("private key is required")
	}

	return &KeySigner{privateKey: pk}, nil
}

// PublicKey returns the compressed 33 byte public key for this signer.
func (ks *KeySigner) PublicKey() []byte {
	return crypto.CompressPubkey(&ks.privateKey.PublicKey)
}

// PubKeyHash returns the short hash of the compressed public key. This is
// the value placed inside a pay-to-pubkey-hash lock script.
func (ks *KeySigner) PubKeyHash() []byte {
	return ShortHash(ks.PublicKey())
}

// Sign implements the Signer interface. The signature is returned in the
// 64 byte [R || S] form.
func (ks *KeySigner) Sign(digest chainhash.Hash) ([]byte, []byte, error) {
	sig, err := crypto.Sign(digest[:], ks.privateKey)
	if err != nil {
		return nil, nil, err
	}

	return sig[:crypto.RecoveryIDOffset], ks.PublicKey(), nil
}
