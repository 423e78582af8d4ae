// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the pubkey hashes of the accounts.
package nameservice

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
)

// NameService maintains a map of pubkey hashes for name lookup.
type NameService struct {
	accounts map[string]string
	names    map[string]string
}

// New constructs a name service with accounts from the specified folder.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[string]string),
		names:    make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		signer, err := signature.NewKeySignerFromECDSA(privateKey)
		if err != nil {
			return err
		}

		pkh := hex.EncodeToString(signer.PubKeyHash())
		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		ns.accounts[pkh] = name
		ns.names[name] = pkh

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified pubkey hash. The hex form of
// the hash is returned when the account is unknown.
func (ns *NameService) Lookup(pubKeyHash []byte) string {
	pkh := hex.EncodeToString(pubKeyHash)

	name, exists := ns.accounts[pkh]
	if !exists {
		return pkh
	}
	return name
}

// Resolve returns the pubkey hash for a name or a hex pubkey hash.
func (ns *NameService) Resolve(nameOrHash string) ([]byte, error) {
	if pkh, exists := ns.names[nameOrHash]; exists {
		nameOrHash = pkh
	}

	b, err := hex.DecodeString(nameOrHash)
	if err != nil {
		return nil, fmt.Errorf("%q is not a known account or a hex pubkey hash", nameOrHash)
	}
	return b, nil
}

// Copy returns a copy of the map of pubkey hashes and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.accounts))
	for pkh, name := range ns.accounts {
		cpy[pkh] = name
	}
	return cpy
}
