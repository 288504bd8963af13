package cmd

import (
	"encoding/json"
	"log"
	"os"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the current chain of the node",
	Run:   chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

func chainRun(cmd *cobra.Command, args []string) {
	var blocks []database.Block
	if err := get("/v1/chain", &blocks); err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(blocks); err != nil {
		log.Fatal(err)
	}
}
