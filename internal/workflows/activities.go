package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/temporal"
	"gopkg.in/yaml.v3"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/pkg/metrics"
	"github.com/samirrijal/geosearch/internal/pkg/telemetry"
)

// IndexActivities holds the activity implementations for the reindex workflow.
type IndexActivities struct {
	Records ports.RecordRepository
	Events  ports.IndexEventPublisher
}

// sourceFile is the on-disk layout of a reindex source.
type sourceFile struct {
	Records []domain.Record `json:"records" yaml:"records"`
}

// LoadRecords reads records for index from a YAML or JSON file.
func (a *IndexActivities) LoadRecords(ctx context.Context, source, index string) ([]domain.Record, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("read source %s", source), "SourceUnreadable", err)
	}

	records, err := decodeRecords(filepath.Ext(source), data)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("decode source %s", source), "SourceInvalid", err)
	}

	for i := range records {
		if records[i].ObjectID == "" {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("record %d has no objectID", i), "SourceInvalid", nil)
		}
		records[i].Index = index
	}

	slog.Info("records loaded", "index", index, "source", source, "count", len(records))
	return records, nil
}

func decodeRecords(ext string, data []byte) ([]domain.Record, error) {
	var src sourceFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &src); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(data, &src); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported source format %q", ext)
	}
	return src.Records, nil
}

// UpsertOutcome describes what an upsert changed, so that it can be undone.
type UpsertOutcome struct {
	// Inserted lists object IDs that did not exist before the upsert.
	Inserted []string
	// Replaced holds the previous version of every overwritten record.
	Replaced []domain.Record
}

// UpsertRecords snapshots the existing versions of one batch, then writes it.
func (a *IndexActivities) UpsertRecords(ctx context.Context, records []domain.Record) (UpsertOutcome, error) {
	if len(records) == 0 {
		return UpsertOutcome{}, nil
	}
	index := records[0].Index
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanUpsertBatch, trace.WithAttributes(
		telemetry.AttrIndex.String(index),
		telemetry.AttrBatchSize.Int(len(records)),
	))
	defer span.End()

	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if !seen[r.ObjectID] {
			seen[r.ObjectID] = true
			ids = append(ids, r.ObjectID)
		}
	}

	prior, err := a.Records.GetBatch(ctx, index, ids)
	if err != nil {
		span.RecordError(err)
		return UpsertOutcome{}, fmt.Errorf("snapshot %d records: %w", len(ids), err)
	}
	if err := a.Records.UpsertBatch(ctx, records); err != nil {
		span.RecordError(err)
		return UpsertOutcome{}, fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	metrics.RecordsIndexed.WithLabelValues(index).Add(float64(len(records)))

	existed := make(map[string]bool, len(prior))
	for _, r := range prior {
		existed[r.ObjectID] = true
	}
	out := UpsertOutcome{Replaced: prior}
	for _, id := range ids {
		if !existed[id] {
			out.Inserted = append(out.Inserted, id)
		}
	}
	return out, nil
}

// RestoreRecords undoes upserts: inserted records are deleted and replaced
// records are written back in their previous version.
func (a *IndexActivities) RestoreRecords(ctx context.Context, index string, inserted []string, replaced []domain.Record) error {
	if err := a.Records.DeleteBatch(ctx, index, inserted); err != nil {
		return fmt.Errorf("delete %d records from %s: %w", len(inserted), index, err)
	}
	if len(replaced) > 0 {
		if err := a.Records.UpsertBatch(ctx, replaced); err != nil {
			return fmt.Errorf("restore %d records in %s: %w", len(replaced), index, err)
		}
	}
	slog.Warn("reindex rolled back", "index", index, "deleted", len(inserted), "restored", len(replaced))
	return nil
}

// PublishIndexUpdated notifies live sessions that index changed.
func (a *IndexActivities) PublishIndexUpdated(ctx context.Context, index string) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanIndexUpdated, trace.WithAttributes(
		telemetry.AttrIndex.String(index),
	))
	defer span.End()

	if a.Events == nil {
		return nil
	}
	return a.Events.PublishIndexUpdated(ctx, index)
}
