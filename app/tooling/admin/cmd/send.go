package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/script"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/nameservice"
)

// ErrInsufficientFunds is returned when the account can't cover the value
// and the fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

var (
	to       string
	value    uint64
	fee      uint64
	mineSend bool
	outFile  string
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the confirmed balance of the account",
	RunE:  balanceRun,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send value from the account to a pubkey hash",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account name or hex pubkey hash of the receiver.")
	sendCmd.Flags().Uint64VarP(&value, "value", "x", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee paid to the miner.")
	sendCmd.Flags().BoolVarP(&mineSend, "mine", "m", true, "Mine a block holding the transaction.")
	sendCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the signed transaction to the file instead of submitting it.")
}

func balanceRun(cmd *cobra.Command, args []string) error {
	st, signer, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	bal := st.QueryBalance(signer.PubKeyHash())

	ns, err := nameservice.New(accountPath)
	if err != nil {
		return err
	}

	fmt.Println("For Account:", ns.Lookup(signer.PubKeyHash()), hex.EncodeToString(signer.PubKeyHash()))
	for _, o := range bal.Outputs {
		fmt.Printf("  %s  %d\n", o.OutPoint, o.UTXO.Amount)
	}
	fmt.Println("Confirmed:", bal.Confirmed)

	return nil
}

func sendRun(cmd *cobra.Command, args []string) error {
	ns, err := nameservice.New(accountPath)
	if err != nil {
		return err
	}

	toPKH, err := ns.Resolve(to)
	if err != nil {
		return err
	}
	if len(toPKH) != script.PubKeyHashSize {
		return fmt.Errorf("receiver must be a %d byte pubkey hash", script.PubKeyHashSize)
	}

	st, signer, err := openState()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	tx, err := buildSend(st.QueryBalance(signer.PubKeyHash()), signer, toPKH, value, fee)
	if err != nil {
		return err
	}

	if outFile != "" {
		if err := writeTx(outFile, tx); err != nil {
			return err
		}
		fmt.Println("written:", outFile)
		return nil
	}

	return submit(cmd.Context(), st, tx, mineSend)
}

// submit hands the transaction to the state and mines it when asked.
func submit(ctx context.Context, st *state.State, tx database.Tx, mine bool) error {
	entry, err := st.SubmitTransaction(tx)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", state.Classify(err), err)
	}
	fmt.Println("submitted:", entry.ID, "fee:", entry.Fee)

	if !mine {
		return nil
	}

	block, err := st.MineNewBlock(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("height: %d  hash: %s  txs: %d\n", block.Height, block.Hash(), block.TxCount)

	return nil
}

// buildSend spends the outputs in order until the value and the fee are
// covered. Any remainder is returned to the signer.
func buildSend(bal state.Balance, signer *signature.KeySigner, toPKH []byte, value uint64, fee uint64) (database.Tx, error) {
	need := value + fee
	if need < value {
		return database.Tx{}, fmt.Errorf("%w: value and fee overflow", ErrInsufficientFunds)
	}

	var ins []database.TxIn
	var have uint64
	for _, o := range bal.Outputs {
		if have >= need {
			break
		}

		in, err := database.NewTxIn(o.OutPoint.TxID, o.OutPoint.Index, script.New())
		if err != nil {
			return database.Tx{}, err
		}
		ins = append(ins, in)
		have += o.UTXO.Amount
	}

	if have < need || len(ins) == 0 {
		return database.Tx{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, have, need)
	}

	lock := script.P2PKH(signer.PubKeyHash())

	outs := []database.TxOut{{Amount: value, ScriptPubKey: script.P2PKH(toPKH)}}
	if change := have - need; change > 0 {
		outs = append(outs, database.TxOut{Amount: change, ScriptPubKey: lock})
	}

	tx := database.NewTx(ins, outs)
	for i := range ins {
		var err error
		if tx, err = tx.SignInput(i, lock, signer); err != nil {
			return database.Tx{}, err
		}
	}

	return tx, nil
}
