// Package storage selects the implementation used to persist the blockchain.
package storage

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/kvstore"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
)

// Set of storage kinds.
const (
	KindMemory  = "memory"
	KindDisk    = "disk"
	KindKVStore = "kvstore"
)

// Open constructs the storage of the specified kind at the path. The path is
// ignored for memory storage.
func Open(kind string, path string) (database.Storage, error) {
	var (
		strg database.Storage
		err  error
	)

	switch strings.ToLower(kind) {
	case KindMemory:
		strg, err = memory.New()
	case KindDisk:
		strg, err = disk.New(path)
	case KindKVStore:
		strg, err = kvstore.New(path)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", kind, err)
	}

	return strg, nil
}
