package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// Writer emits each record as one line of JSON.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
}

// NewWriter returns a sink writing JSON lines to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

func (s *Writer) Name() string { return "stdout" }

// Emit writes rec and flushes, so a consumer reading the stream sees every
// record as soon as it is emitted.
func (s *Writer) Emit(_ context.Context, rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.Key(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.buf.Write(data); err != nil {
		return err
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return err
	}
	return s.buf.Flush()
}

func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}
