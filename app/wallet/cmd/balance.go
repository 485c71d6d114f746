package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/spf13/cobra"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := txn.LoadPrivateKey(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		address := txn.AddressFromPrivateKey(privateKey)
		fmt.Println("For Address:", address)

		resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, address))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		var balance struct {
			Address string  `json:"address"`
			Balance float64 `json:"balance"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
			log.Fatal(err)
		}
		fmt.Println(balance.Balance)
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}
