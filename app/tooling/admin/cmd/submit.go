package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

var (
	txFile     string
	mineSubmit bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a signed transaction from a JSON file",
	RunE:  submitRun,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&txFile, "file", "f", "", "Path to the transaction JSON document.")
	submitCmd.Flags().BoolVarP(&mineSubmit, "mine", "m", true, "Mine a block holding the transaction.")
	submitCmd.MarkFlagRequired("file")
}

func submitRun(cmd *cobra.Command, args []string) error {
	tx, err := readTx(txFile)
	if err != nil {
		return err
	}

	st, _, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	return submit(cmd.Context(), st, tx, mineSubmit)
}

// readTx decodes the transaction document stored in the file.
func readTx(path string) (database.Tx, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return database.Tx{}, err
	}

	tx, err := database.DecodeTxJSON(data)
	if err != nil {
		return database.Tx{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return tx, nil
}

// writeTx stores the transaction in the form readTx accepts.
func writeTx(path string, tx database.Tx) error {
	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
