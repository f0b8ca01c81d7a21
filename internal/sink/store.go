package sink

import (
	"context"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// RecordStore is the part of the local store the store sink writes to.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []*model.Record) error
}

// Store upserts each record into the local SQLite store.
type Store struct {
	store RecordStore
}

// NewStore returns a sink writing to s. The sink does not own s and does
// not close it.
func NewStore(s RecordStore) *Store {
	return &Store{store: s}
}

func (s *Store) Name() string { return "store" }

func (s *Store) Emit(ctx context.Context, rec *model.Record) error {
	return s.store.UpsertRecords(ctx, []*model.Record{rec})
}

func (s *Store) Close() error { return nil }
