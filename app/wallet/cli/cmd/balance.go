package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
	"github.com/spf13/cobra"
)

// balance is the document returned by the utxo endpoint of the node.
type balance struct {
	Address string      `json:"address"`
	Name    string      `json:"name"`
	Balance uint64      `json:"balance"`
	UTXOs   []utxo.UTXO `json:"utxos"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	address := signature.PublicKeyToAddress(privateKey.PublicKey)
	fmt.Println("For Address:", address)

	b, err := fetchBalance(address)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Balance: %d in %d outputs\n", b.Balance, len(b.UTXOs))
}

func fetchBalance(address string) (balance, error) {
	var b balance
	if err := get("/v1/utxo/"+address, &b); err != nil {
		return balance{}, err
	}

	return b, nil
}
