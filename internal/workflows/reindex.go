package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/geosearch/internal/core/domain"
)

const defaultBatchSize = 500

// ReindexInput is the input for the reindex workflow.
type ReindexInput struct {
	Index     string
	Source    string
	BatchSize int
}

// ReindexResult summarizes a completed reindex.
type ReindexResult struct {
	Index    string
	Upserted int
}

// ReindexWorkflow loads records from a source file, upserts them in batches and
// announces the index update. If a batch fails, records created by the run are
// deleted and records it overwrote are restored (saga compensation).
func ReindexWorkflow(ctx workflow.Context, input ReindexInput) (ReindexResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting reindex workflow", "index", input.Index, "source", input.Source)

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Load the source
	var records []domain.Record
	if err := workflow.ExecuteActivity(ctx, "LoadRecords", input.Source, input.Index).Get(ctx, &records); err != nil {
		return ReindexResult{}, err
	}

	// Step 2: Upsert in batches, keeping what each batch changed
	var (
		upserted int
		inserted []string
		replaced []domain.Record
		touched  = make(map[string]bool)
	)
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		var outcome UpsertOutcome
		if err := workflow.ExecuteActivity(ctx, "UpsertRecords", batch).Get(ctx, &outcome); err != nil {
			logger.Warn("upsert failed, compensating", "error", err, "upserted", upserted)
			if len(inserted) > 0 || len(replaced) > 0 {
				// Compensate: drop new records, put overwritten ones back
				cerr := workflow.ExecuteActivity(ctx, "RestoreRecords", input.Index, inserted, replaced).Get(ctx, nil)
				if cerr != nil {
					logger.Error("compensation failed", "index", input.Index, "error", cerr,
						"inserted", len(inserted), "replaced", len(replaced))
				}
			}
			return ReindexResult{}, err
		}

		// Only the first snapshot of a record predates this run.
		for _, id := range outcome.Inserted {
			if !touched[id] {
				touched[id] = true
				inserted = append(inserted, id)
			}
		}
		for _, r := range outcome.Replaced {
			if !touched[r.ObjectID] {
				touched[r.ObjectID] = true
				replaced = append(replaced, r)
			}
		}
		upserted += len(batch)
	}

	// Step 3: Notify live sessions
	if err := workflow.ExecuteActivity(ctx, "PublishIndexUpdated", input.Index).Get(ctx, nil); err != nil {
		logger.Warn("index update notification failed", "error", err)
	}

	logger.Info("Reindex completed", "index", input.Index, "upserted", upserted)
	return ReindexResult{Index: input.Index, Upserted: upserted}, nil
}
