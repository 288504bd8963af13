package main

import "github.com/ardanlabs/p2pledger/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
