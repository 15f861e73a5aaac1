package main

import (
	"log"

	"github.com/spf13/cobra"
)

// rootCmd is a base command.
var rootCmd = &cobra.Command{
	Use:   "shared-list",
	Short: "Shared ordered list server / client",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("rootCmd.Execute: %v", err)
	}
}
