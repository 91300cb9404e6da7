package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geosearch/internal/core/domain"
	"github.com/samirrijal/geosearch/internal/core/ports"
	"github.com/samirrijal/geosearch/internal/pkg/geospatial"
)

// RecordRepo implements ports.RecordRepository with pgx and PostGIS.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Search returns one page of matching records and the total match count.
func (r *RecordRepo) Search(ctx context.Context, q ports.RecordQuery) ([]domain.Record, int, error) {
	where, orderBy, args := buildSearch(q)

	var total int
	if err := r.db.Pool.QueryRow(ctx,
		"SELECT count(*) FROM records WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	if total == 0 || q.Offset >= total {
		return []domain.Record{}, total, nil
	}

	pageArgs := append(args, q.Limit, q.Offset)
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT object_id, index_name, attributes,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lng,
		       updated_at
		FROM records
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, where, orderBy, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// buildSearch renders the WHERE and ORDER BY clauses of q with positional args.
func buildSearch(q ports.RecordQuery) (where, orderBy string, args []any) {
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	conds := []string{"index_name = " + arg(q.Index)}
	if q.Query != "" {
		conds = append(conds, "search_text @@ plainto_tsquery('simple', "+arg(q.Query)+")")
	}
	if len(q.Boxes) > 0 {
		boxes := make([]string, len(q.Boxes))
		for i, b := range q.Boxes {
			minLat, minLng, maxLat, maxLng := geospatial.Envelope(
				b.NorthEast.Lat, b.NorthEast.Lng, b.SouthWest.Lat, b.SouthWest.Lng)
			boxes[i] = fmt.Sprintf("location::geometry && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
				arg(minLng), arg(minLat), arg(maxLng), arg(maxLat))
		}
		conds = append(conds, "("+strings.Join(boxes, " OR ")+")")
	}

	orderBy = "object_id"
	if q.Around != nil {
		point := fmt.Sprintf("ST_SetSRID(ST_MakePoint(%s, %s), 4326)::geography", arg(q.Around.Lng), arg(q.Around.Lat))
		if q.RadiusMeters > 0 {
			conds = append(conds, fmt.Sprintf("ST_DWithin(location, %s, %s)", point, arg(q.RadiusMeters)))
		}
		orderBy = "ST_Distance(location, " + point + ") NULLS LAST, object_id"
	}

	return strings.Join(conds, " AND "), orderBy, args
}

// GetByID returns a record by index and object ID.
func (r *RecordRepo) GetByID(ctx context.Context, index, objectID string) (*domain.Record, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT object_id, index_name, attributes,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lng,
		       updated_at
		FROM records
		WHERE index_name = $1 AND object_id = $2
	`, index, objectID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s/%s: %w", index, objectID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetBatch returns the existing records among objectIDs.
func (r *RecordRepo) GetBatch(ctx context.Context, index string, objectIDs []string) ([]domain.Record, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT object_id, index_name, attributes,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lng,
		       updated_at
		FROM records
		WHERE index_name = $1 AND object_id = ANY($2)
		ORDER BY object_id
	`, index, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		return scanRecord(row)
	})
}

// UpsertBatch inserts or updates many records using pgx.Batch in one
// transaction.
func (r *RecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		var lat, lng *float64
		if rec.Geoloc != nil {
			lat, lng = &rec.Geoloc.Lat, &rec.Geoloc.Lng
		}
		batch.Queue(`
			INSERT INTO records (index_name, object_id, attributes, location, updated_at)
			VALUES (
				$1, $2, COALESCE($3::jsonb, '{}'::jsonb),
				CASE WHEN $4::float8 IS NULL OR $5::float8 IS NULL THEN NULL
				     ELSE ST_SetSRID(ST_MakePoint($5, $4), 4326)::geography END,
				now()
			)
			ON CONFLICT (index_name, object_id) DO UPDATE
			SET attributes = EXCLUDED.attributes,
			    location = EXCLUDED.location,
			    updated_at = EXCLUDED.updated_at
		`, rec.Index, rec.ObjectID, rec.Attributes, lat, lng)
	}
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		return br.Close()
	})
}

// DeleteBatch removes records by object ID.
func (r *RecordRepo) DeleteBatch(ctx context.Context, index string, objectIDs []string) error {
	if len(objectIDs) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM records WHERE index_name = $1 AND object_id = ANY($2)`,
		index, objectIDs)
	return err
}

// ListIndexes returns every index with its record count.
func (r *RecordRepo) ListIndexes(ctx context.Context) ([]domain.IndexStats, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT index_name, count(*), count(location), max(updated_at)
		FROM records
		GROUP BY index_name
		ORDER BY index_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IndexStats
	for rows.Next() {
		var s domain.IndexStats
		if err := rows.Scan(&s.Name, &s.Records, &s.Geolocated, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		rec      domain.Record
		lat, lng *float64
	)
	if err := row.Scan(&rec.ObjectID, &rec.Index, &rec.Attributes, &lat, &lng, &rec.UpdatedAt); err != nil {
		return domain.Record{}, err
	}
	if lat != nil && lng != nil {
		rec.Geoloc = &domain.LatLng{Lat: *lat, Lng: *lng}
	}
	return rec, nil
}
