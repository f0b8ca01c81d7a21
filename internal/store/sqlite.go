package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// encodePayload serializes a record as snappy-compressed JSON.
func encodePayload(rec *model.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodePayload(payload []byte) (*model.Record, error) {
	data, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	rec := &model.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return rec, nil
}

// UpsertRecords inserts or replaces a batch of records keyed by type and id.
func (s *SQLiteStore) UpsertRecords(ctx context.Context, records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO records (type, id, payload, updated_at)
		VALUES (?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, rec := range records {
		payload, err := encodePayload(rec)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.Key(), err)
		}

		if _, err := stmt.ExecContext(ctx, string(rec.Type), rec.ID, payload, now); err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.Key(), err)
		}
	}

	return tx.Commit()
}

// recordRow is the scan target for the records table.
type recordRow struct {
	Type      string    `db:"type"`
	ID        int64     `db:"id"`
	Payload   []byte    `db:"payload"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r recordRow) toStored() (StoredRecord, error) {
	rec, err := decodePayload(r.Payload)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("record %s/%d: %w", r.Type, r.ID, err)
	}
	return StoredRecord{Record: rec, UpdatedAt: r.UpdatedAt}, nil
}

// GetRecords retrieves records matching the filter, most recently updated
// first.
func (s *SQLiteStore) GetRecords(ctx context.Context, filter RecordFilter) ([]StoredRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Since != nil {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT type, id, payload, updated_at FROM records"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, type, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}

	out := make([]StoredRecord, 0, len(rows))
	for _, r := range rows {
		stored, err := r.toStored()
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// GetRecord retrieves a single record by type and id.
func (s *SQLiteStore) GetRecord(ctx context.Context, typ model.RecordType, id int64) (*StoredRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		"SELECT type, id, payload, updated_at FROM records WHERE type = ? AND id = ?",
		string(typ), id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting record %s/%d: %w", typ, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s/%d: %w", typ, id, err)
	}

	stored, err := row.toStored()
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// CountRecords returns the number of stored records per type.
func (s *SQLiteStore) CountRecords(ctx context.Context) (map[model.RecordType]int, error) {
	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT type, COUNT(*) AS n FROM records GROUP BY type"); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	counts := make(map[model.RecordType]int, len(rows))
	for _, r := range rows {
		counts[model.RecordType(r.Type)] = r.Count
	}
	return counts, nil
}

// CreateRun inserts the start of a sync cycle. A run without an id gets a
// new UUID.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at, finished_at, emitted, failed, skipped, stage_errors)
		VALUES (:id, :mode, :started_at, :finished_at, :emitted, :failed, :skipped, :stage_errors)`,
		run,
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of a sync cycle.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.FinishedAt == nil {
		now := s.now().UTC()
		run.FinishedAt = &now
	}

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE runs SET
			finished_at = :finished_at,
			emitted = :emitted,
			failed = :failed,
			skipped = :skipped,
			stage_errors = :stage_errors
		WHERE id = :id`,
		run,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetRuns returns the most recent runs, newest first.
func (s *SQLiteStore) GetRuns(ctx context.Context, limit int) ([]model.Run, error) {
	query := "SELECT * FROM runs ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var runs []model.Run
	if err := s.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}
