package main

import (
	"os"

	"github.com/linecrypto/clearnode/cmd/clearnode/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
