package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	altName string
	message string
)

var engraveCmd = &cobra.Command{
	Use:   "engrave",
	Short: "Engrave a signed message into the chain",
	Run:   engraveRun,
}

func init() {
	rootCmd.AddCommand(engraveCmd)
	engraveCmd.Flags().StringVarP(&altName, "name", "n", "", "Name shown next to the message.")
	engraveCmd.Flags().StringVarP(&message, "message", "m", "", "Message to engrave.")
	engraveCmd.MarkFlagRequired("message")
}

func engraveRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	tx, err := database.NewEngraved(altName, message).Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	var resp submitted
	if err := post("/v1/tx/submit", tx, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Status, resp.ID)
}
