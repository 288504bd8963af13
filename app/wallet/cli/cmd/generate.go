package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/keystore"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	privateKey, err := keystore.Generate(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(signature.PublicKeyToAddress(privateKey.PublicKey))
}
