package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// IndexConfig configures the search index sink.
type IndexConfig struct {
	URL      string
	User     string
	Password string

	// Prefix is prepended to the record type to name the index.
	Prefix string

	Timeout time.Duration
}

// Index writes each record as a document of a Zinc-compatible search
// index, one index per record type. Documents are keyed by record id, so
// re-emitting a record replaces it.
type Index struct {
	client *resty.Client
	prefix string
}

// NewIndex creates the index sink.
func NewIndex(cfg IndexConfig) *Index {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}

	return &Index{client: client, prefix: cfg.Prefix}
}

func (s *Index) Name() string { return "index" }

// IndexName returns the index a record of the given type is written to.
func (s *Index) IndexName(typ model.RecordType) string {
	return s.prefix + string(typ)
}

func (s *Index) Emit(ctx context.Context, rec *model.Record) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"index": s.IndexName(rec.Type),
			"id":    strconv.FormatInt(rec.ID, 10),
		}).
		SetBody(rec).
		Put("/api/{index}/_doc/{id}")
	if err != nil {
		return fmt.Errorf("indexing %s: %w", rec.Key(), err)
	}
	if resp.IsError() {
		return fmt.Errorf("indexing %s: status %d: %s", rec.Key(), resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *Index) Close() error { return nil }
