package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	"FinResolve/pkg/logger"
)

const insertChunk = 2000

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

// ClickHouseResolutionStore keeps an audit row per resolved instrument.
type ClickHouseResolutionStore struct {
	db    sqlDB
	table string
	now   func() time.Time
	log   *logger.Logger
}

var _ repository.ResolutionStore = (*ClickHouseResolutionStore)(nil)

// NewClickHouseResolutionStore creates the store. The pool is owned by the
// caller.
func NewClickHouseResolutionStore(db *sql.DB, table string, log *logger.Logger) (*ClickHouseResolutionStore, error) {
	return newResolutionStore(db, table, log)
}

func newResolutionStore(db sqlDB, table string, log *logger.Logger) (*ClickHouseResolutionStore, error) {
	if table == "" {
		table = "instrument_resolutions"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseResolutionStore{db: db, table: table, now: time.Now, log: log}, nil
}

// Init creates the audit table.
func (s *ClickHouseResolutionStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id         String,
			resolved_at    DateTime64(3, 'UTC'),
			query_name     String,
			query_isin     LowCardinality(String),
			name           String,
			isin           LowCardinality(String),
			asset_class    LowCardinality(String),
			primary_source LowCardinality(String),
			strategy       LowCardinality(String),
			confidence     Float64,
			quality        Float64,
			partial        UInt8
		)
		ENGINE = MergeTree
		PARTITION BY toYYYYMM(resolved_at)
		ORDER BY (isin, resolved_at)
		TTL toDateTime(resolved_at) + INTERVAL 180 DAY`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordResolutions inserts one row per item in multi-row chunks.
func (s *ClickHouseResolutionStore) RecordResolutions(ctx context.Context, runID string, items []models.ResolvedInstrument) error {
	rows := ToStored(runID, s.now(), items)
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		q, args := s.insertQuery(rows[start:end])
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.log.Error("clickhouse insert resolutions",
				logger.String("table", s.table),
				logger.String("run_id", runID),
				logger.Int("rows", end-start),
				logger.Error(err),
			)
			return fmt.Errorf("insert resolutions: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseResolutionStore) insertQuery(rows []repository.StoredResolution) (string, []any) {
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*12)
	for i, r := range rows {
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		partial := uint8(0)
		if r.Partial {
			partial = 1
		}
		args = append(args,
			r.RunID, r.ResolvedAt, r.QueryName, r.QueryISIN, r.Name, r.ISIN,
			r.AssetClass, r.PrimarySource, r.Strategy, r.Confidence, r.Quality, partial,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, resolved_at, query_name, query_isin, name, isin, asset_class, primary_source, strategy, confidence, quality, partial) VALUES %s",
		s.table, strings.Join(values, ","))
	return q, args
}

// Recent returns the latest audit rows for isin since the given time.
func (s *ClickHouseResolutionStore) Recent(ctx context.Context, isin string, since time.Time, limit int) ([]repository.StoredResolution, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
		SELECT run_id, resolved_at, query_name, query_isin, name, isin, asset_class,
		       primary_source, strategy, confidence, quality, partial
		FROM %s
		WHERE isin = ? AND resolved_at >= ?
		ORDER BY resolved_at DESC
		LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, models.NormalizeISIN(isin), since, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	out := make([]repository.StoredResolution, 0, limit)
	for rows.Next() {
		var (
			r       repository.StoredResolution
			partial uint8
		)
		if err := rows.Scan(&r.RunID, &r.ResolvedAt, &r.QueryName, &r.QueryISIN, &r.Name, &r.ISIN,
			&r.AssetClass, &r.PrimarySource, &r.Strategy, &r.Confidence, &r.Quality, &partial); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		r.Partial = partial == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHouseResolutionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseResolutionStore) Close() error {
	return nil
}

// ToStored flattens resolved instruments into audit rows.
func ToStored(runID string, at time.Time, items []models.ResolvedInstrument) []repository.StoredResolution {
	out := make([]repository.StoredResolution, 0, len(items))
	for _, it := range items {
		out = append(out, repository.StoredResolution{
			RunID:         runID,
			ResolvedAt:    at.UTC(),
			QueryName:     it.Query.Name,
			QueryISIN:     it.Query.ISIN,
			Name:          it.Record.Value(models.FieldName),
			ISIN:          it.Record.Value(models.FieldISIN),
			AssetClass:    it.Record.Value(models.FieldAssetClass),
			PrimarySource: string(it.ResolvedBy.PrimarySource),
			Strategy:      string(it.ResolvedBy.Strategy),
			Confidence:    it.Confidence,
			Quality:       it.DataQuality.Overall,
			Partial:       it.Partial,
		})
	}
	return out
}
