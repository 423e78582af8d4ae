package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
)

var (
	mineCount   int
	blockHeight uint64
	txID        string
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine blocks paying the account",
	RunE:  mineRun,
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Print a block from the chain",
	RunE:  blockRun,
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Print a transaction and where it was found",
	RunE:  txRun,
}

var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Print the merkle inclusion proof for a transaction",
	RunE:  proofRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(proofCmd)

	mineCmd.Flags().IntVarP(&mineCount, "count", "n", 1, "Number of blocks to mine.")
	blockCmd.Flags().Uint64VarP(&blockHeight, "height", "t", state.QueryLatest, "Height of the block, defaults to the latest.")
	txCmd.Flags().StringVarP(&txID, "id", "i", "", "Id of the transaction.")
	proofCmd.Flags().StringVarP(&txID, "id", "i", "", "Id of the transaction.")
}

func mineRun(cmd *cobra.Command, args []string) error {
	st, _, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	for range mineCount {
		block, err := st.MineNewBlock(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("height: %d  hash: %s  txs: %d  bits: %s\n", block.Height, block.Hash(), block.TxCount, block.Header.Bits)
	}

	return nil
}

func blockRun(cmd *cobra.Command, args []string) error {
	st, _, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	block, err := st.QueryBlockByHeight(blockHeight)
	if err != nil {
		return err
	}

	return printJSON(database.NewBlockData(block))
}

func txRun(cmd *cobra.Command, args []string) error {
	st, _, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	rec, err := st.QueryTx(txID)
	if err != nil {
		return err
	}

	return printJSON(rec)
}

func proofRun(cmd *cobra.Command, args []string) error {
	st, _, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	proof, err := st.QueryTxProof(txID)
	if err != nil {
		return err
	}

	if err := printJSON(proof); err != nil {
		return err
	}
	fmt.Println("verified:", proof.Verify())

	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
