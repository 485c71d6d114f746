package cmd

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/coinforge/node/foundation/chain/txn"
	"github.com/coinforge/node/foundation/chain/utxo"
	"github.com/spf13/cobra"
)

var (
	url    string
	to     string
	amount float64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a value transfer",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := txn.LoadPrivateKey(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		if err := send(privateKey); err != nil {
			log.Fatal(err)
		}
	},
}

// send selects enough of the wallet's spendable outputs to cover the
// amount, builds a transfer with change back to the sender, signs every
// input over the transaction id, and submits it to the node.
func send(privateKey ed25519.PrivateKey) error {
	address := txn.AddressFromPrivateKey(privateKey)

	unspent, err := fetchUnspent(address)
	if err != nil {
		return fmt.Errorf("fetching unspent outputs: %w", err)
	}

	var ins []txn.TxIn
	var total float64
	for _, o := range unspent {
		if total >= amount {
			break
		}
		ins = append(ins, txn.TxIn{PrevTxID: o.TxID, PrevOutIndex: o.OutIndex})
		total += o.Amount
	}
	if total < amount {
		return fmt.Errorf("insufficient funds: have %v want %v", total, amount)
	}

	outs := []txn.TxOut{{Address: to, Amount: amount}}
	if change := total - amount; change > 0 {
		outs = append(outs, txn.TxOut{Address: address, Amount: change})
	}

	tx := txn.NewTx(ins, outs)

	sig, err := txn.Sign(tx.ID, privateKey)
	if err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	pubPEM := txn.EncodePublicKeyPEM(privateKey.Public().(ed25519.PublicKey))
	for i := range tx.Ins {
		tx.Ins[i].Signature = sig
		tx.Ins[i].PublicKey = pubPEM
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/transactions", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s", body)
	}

	fmt.Println("submitted:", tx.ID)
	return nil
}

// fetchUnspent queries the node for the outputs the address can spend
// right now, already filtered of anything consumed by a pending pool
// transaction.
func fetchUnspent(address string) ([]utxo.Output, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/unspent/%s", url, address))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var unspent []utxo.Output
	if err := json.NewDecoder(resp.Body).Decode(&unspent); err != nil {
		return nil, err
	}
	return unspent, nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Destination address.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.Flags().Float64VarP(&amount, "amount", "a", 0, "Amount to send.")
	sendCmd.MarkFlagRequired("amount")
}
