package cmd

import (
	"fmt"
	"log"

	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/spf13/cobra"
)

// addressCmd represents the address command
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address for the specific wallet",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := txn.LoadPrivateKey(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(txn.AddressFromPrivateKey(privateKey))
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
