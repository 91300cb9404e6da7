package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Load geolocated records into search indexes",
	Long: `Indexer runs the reindex workflow on Temporal.

Available subcommands:
  worker  - Run a Temporal worker for reindex workflows
  reindex - Start a reindex of one index from a YAML or JSON file`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(workerCmd, reindexCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
