package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/itiky/shared-list/config"
	"github.com/itiky/shared-list/storage"
)

const (
	FlagStorageSize = "storage-size"
)

// GetSeedCmd returns fill the store with mock data command.
func GetSeedCmd() *cobra.Command {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("server config: %v", err)
	}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with mock data",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs
			storeDSN, err := cmd.Flags().GetString(FlagStoreDSN)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagStoreDSN, err)
			}
			storageSize, err := cmd.Flags().GetInt(FlagStorageSize)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagStorageSize, err)
			}

			// Work
			store, err := storage.Open(storeDSN)
			if err != nil {
				log.Fatalf("store init: %v", err)
			}
			defer store.Close()

			if err := storage.Seed(context.Background(), store, storageSize); err != nil {
				log.Fatalf("seed failed: %v", err)
			}
			log.Printf("%d items added to %s", storageSize, storeDSN)
		},
	}
	cmd.Flags().String(FlagStoreDSN, cfg.StoreDSN, "(optional) store DSN (file://<path>, postgres://...)")
	cmd.Flags().Int(FlagStorageSize, 1000, "(optional) number of items to add")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetSeedCmd())
}
