package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
	"github.com/spf13/cobra"
)

var (
	to    string
	value uint64
	fee   uint64
)

// submitted is the document returned when the node accepts a transaction.
type submitted struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send value to an address",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address of the recipient.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee left for the block producer.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("value")
}

func sendRun(cmd *cobra.Command, args []string) {
	if !database.ValidAddress(to) {
		log.Fatalf("invalid recipient address %q", to)
	}

	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	address := signature.PublicKeyToAddress(privateKey.PublicKey)

	b, err := fetchBalance(address)
	if err != nil {
		log.Fatal(err)
	}

	// Outputs the node reports as spendable are selected in order and any
	// remainder comes back as change.
	wallet := utxo.New(address)
	for _, u := range b.UTXOs {
		wallet.Put(u)
	}

	tx, err := wallet.Pay(privateKey, to, value, fee)
	if err != nil {
		log.Fatal(err)
	}

	var resp submitted
	if err := post("/v1/tx/submit", tx, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Status, resp.ID)
}
