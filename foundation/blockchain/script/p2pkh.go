package script

import (
	"bytes"
	"encoding/binary"
)

// PubKeyHashSize is the length of the hash locked by a P2PKH script.
const PubKeyHashSize = 20

// P2PKH constructs the pay-to-pubkey-hash lock script for the hash.
func P2PKH(pubKeyHash []byte) Script {
	return New(
		Op(OpDup),
		Op(OpHash160),
		Data(pubKeyHash),
		Op(OpEqualVerify),
		Op(OpCheckSig),
	)
}

// PubKeyHash returns the locked hash if the script has the P2PKH shape.
func (s Script) PubKeyHash() ([]byte, bool) {
	if len(s.cmds) != 5 {
		return nil, false
	}

	if !s.cmds[0].IsOp(OpDup) || !s.cmds[1].IsOp(OpHash160) || !s.cmds[3].IsOp(OpEqualVerify) || !s.cmds[4].IsOp(OpCheckSig) {
		return nil, false
	}

	pkh, ok := s.cmds[2].Bytes()
	if !ok || len(pkh) != PubKeyHashSize {
		return nil, false
	}

	return pkh, true
}

// PaysTo reports whether the script is a P2PKH lock for the hash.
func (s Script) PaysTo(pubKeyHash []byte) bool {
	pkh, ok := s.PubKeyHash()
	return ok && bytes.Equal(pkh, pubKeyHash)
}

// P2PKHUnlock constructs the unlock script spending a P2PKH output.
func P2PKHUnlock(sig []byte, pubKey []byte) Script {
	return New(Data(sig), Data(pubKey))
}

// SigAndPubKey returns the signature and public key if the script has the
// P2PKH unlock shape.
func (s Script) SigAndPubKey() (sig []byte, pubKey []byte, ok bool) {
	if len(s.cmds) != 2 {
		return nil, nil, false
	}

	sig, ok1 := s.cmds[0].Bytes()
	pubKey, ok2 := s.cmds[1].Bytes()
	if !ok1 || !ok2 || len(sig) == 0 || len(pubKey) == 0 {
		return nil, nil, false
	}

	return sig, pubKey, true
}

// =============================================================================

// CoinbaseScript constructs the unlock script of a coinbase input. The height
// is committed as 4 little endian bytes followed by the message.
func CoinbaseScript(height uint64, message string) Script {
	var h [4]byte
	binary.LittleEndian.PutUint32(h[:], uint32(height))

	return New(Data(h[:]), Data([]byte(message)))
}

// CoinbaseHeight returns the height committed by a coinbase unlock script.
func CoinbaseHeight(s Script) (uint64, bool) {
	if len(s.cmds) == 0 {
		return 0, false
	}

	b, ok := s.cmds[0].Bytes()
	if !ok || len(b) != 4 {
		return 0, false
	}

	return uint64(binary.LittleEndian.Uint32(b)), true
}
