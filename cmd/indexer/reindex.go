package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/geosearch/internal/pkg/config"
	"github.com/samirrijal/geosearch/internal/workflows"
)

var (
	reindexIndex     string
	reindexSource    string
	reindexBatchSize int
	reindexWait      bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Start a reindex of one index",
	Long: `Start a reindex workflow that upserts every record of a YAML or JSON
source file into the index, then notifies live sessions.

If a batch fails, records already written by the run are removed.`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringVar(&reindexIndex, "index", "", "index name (required)")
	reindexCmd.Flags().StringVar(&reindexSource, "source", "", "path to a .yaml, .yml or .json records file (required)")
	reindexCmd.Flags().IntVar(&reindexBatchSize, "batch-size", 500, "records per upsert batch")
	reindexCmd.Flags().BoolVar(&reindexWait, "wait", true, "wait for the workflow to finish")
	_ = reindexCmd.MarkFlagRequired("index")
	_ = reindexCmd.MarkFlagRequired("source")
}

func runReindex(cmd *cobra.Command, args []string) error {
	if reindexBatchSize <= 0 {
		return errors.New("--batch-size must be positive")
	}
	source, err := filepath.Abs(reindexSource)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	cfg, err := config.Load("geosearch-indexer")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "reindex-" + reindexIndex + "-" + uuid.NewString(),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.ReindexWorkflow, workflows.ReindexInput{
		Index:     reindexIndex,
		Source:    source,
		BatchSize: reindexBatchSize,
	})
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "started %s (run %s)\n", run.GetID(), run.GetRunID())

	if !reindexWait {
		return nil
	}
	var result workflows.ReindexResult
	if err := run.Get(ctx, &result); err != nil {
		return fmt.Errorf("reindex %s: %w", reindexIndex, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reindexed %s: %d records\n", result.Index, result.Upserted)
	return nil
}
