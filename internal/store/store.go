package store

import (
	"context"
	"time"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// RecordFilter controls filtering and pagination for record queries.
type RecordFilter struct {
	Type   *model.RecordType
	Since  *time.Time
	Limit  int
	Offset int
}

// StoredRecord is an output record as kept in the local store.
type StoredRecord struct {
	Record    *model.Record
	UpdatedAt time.Time
}

// Store defines the persistence interface for output records and the
// history of sync cycles.
type Store interface {
	// === Records ===

	UpsertRecords(ctx context.Context, records []*model.Record) error
	GetRecords(ctx context.Context, filter RecordFilter) ([]StoredRecord, error)
	GetRecord(ctx context.Context, typ model.RecordType, id int64) (*StoredRecord, error)
	CountRecords(ctx context.Context) (map[model.RecordType]int, error)

	// === Runs ===

	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRuns(ctx context.Context, limit int) ([]model.Run, error)

	Close() error
}
