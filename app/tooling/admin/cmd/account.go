package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the pubkey hash for the account",
	RunE:  accountRun,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair for the account",
	RunE:  generateRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(generateCmd)
}

func accountRun(cmd *cobra.Command, args []string) error {
	signer, err := loadSigner()
	if err != nil {
		return err
	}

	fmt.Println(hex.EncodeToString(signer.PubKeyHash()))
	return nil
}

func generateRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	if err := crypto.SaveECDSA(getPrivateKeyPath(), privateKey); err != nil {
		return err
	}

	return accountRun(cmd, args)
}
