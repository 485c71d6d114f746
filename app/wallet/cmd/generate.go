package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/spf13/cobra"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run: func(cmd *cobra.Command, args []string) {
		_, privateKey, err := txn.GenerateKey()
		if err != nil {
			log.Fatal(err)
		}

		path := getPrivateKeyPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			log.Fatal(err)
		}
		if err := txn.SavePrivateKey(path, privateKey); err != nil {
			log.Fatal(err)
		}

		fmt.Println("wrote:", path)
		fmt.Println("address:", txn.AddressFromPrivateKey(privateKey))
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
