package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

var bitsCmd = &cobra.Command{
	Use:   "bits <hex>",
	Short: "Print the target encoded by compact bits",
	Args:  cobra.ExactArgs(1),
	RunE:  bitsRun,
}

func init() {
	rootCmd.AddCommand(bitsCmd)
}

func bitsRun(cmd *cobra.Command, args []string) error {
	bits, err := database.ParseBits(args[0])
	if err != nil {
		return err
	}

	target := bits.Target()
	fmt.Printf("bits:       %s\n", bits)
	fmt.Printf("target:     %064x\n", target)
	fmt.Printf("difficulty: %s\n", difficulty(target))
	fmt.Printf("reencoded:  %s\n", database.TargetToBits(target))

	return nil
}

// difficulty reports the target relative to the 0x1d00ffff target.
func difficulty(target *big.Int) string {
	if target.Sign() == 0 {
		return "inf"
	}

	base := database.Bits(0x1d00ffff).Target()
	d := new(big.Rat).SetFrac(base, target)
	return d.FloatString(4)
}
