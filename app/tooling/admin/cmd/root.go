// Package cmd contains the admin app.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
	"github.com/ardanlabs/powchain/foundation/logger"
)

var (
	accountName string
	accountPath string
	storageKind string
	dbPath      string
	genesisPath string
	workers     int
	verbose     bool
)

const (
	keyExtension = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "miner1", "Name of the private key.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&storageKind, "storage", "s", "disk", "Storage kind: memory, disk or kvstore.")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "zblock/blocks", "Path to the block storage.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", genesis.DefaultPath, "Path to the genesis file.")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of mining goroutines, 0 uses every cpu.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log blockchain events.")
}

var rootCmd = &cobra.Command{
	Use:          "admin",
	Short:        "Administer a local proof of work chain",
	SilenceUsage: true,
}

// Execute runs the command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================

func getPrivateKeyPath() string {
	name := accountName
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(accountPath, name)
}

func loadSigner() (*signature.KeySigner, error) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}

	return signature.NewKeySignerFromECDSA(privateKey)
}

// openState loads the local chain with the account as the miner. The
// caller must call Shutdown on the returned state.
func openState() (*state.State, *signature.KeySigner, error) {
	signer, err := loadSigner()
	if err != nil {
		return nil, nil, err
	}

	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading genesis: %w", err)
	}

	strg, err := storage.Open(storageKind, dbPath)
	if err != nil {
		return nil, nil, err
	}

	var ev state.EventHandler
	if verbose {
		log, err := logger.New("ADMIN")
		if err != nil {
			return nil, nil, err
		}
		ev = logger.EvHandler(log, uuid.NewString())
	}

	st, err := state.New(state.Config{
		Genesis:     gen,
		Storage:     strg,
		Verifier:    verifier.New(signature.Secp256k1{}),
		MinerPKH:    signer.PubKeyHash(),
		MineWorkers: workers,
		EvHandler:   ev,
	})
	if err != nil {
		return nil, nil, err
	}

	return st, signer, nil
}
