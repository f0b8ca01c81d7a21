// Package sink delivers normalized records to downstream systems.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// Sink accepts output records one at a time.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Emit delivers a single record. Implementations must not retain rec
	// after returning.
	Emit(ctx context.Context, rec *model.Record) error

	// Close releases any connection the sink holds.
	Close() error
}

// Multi fans a record out to several sinks in order.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a sink that emits to each of sinks in turn.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

// Emit hands rec to every sink. A failing sink does not stop delivery to
// the ones after it; all failures are returned together.
func (m *Multi) Emit(ctx context.Context, rec *model.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and returns the combined error.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks m fans out to.
func (m *Multi) Len() int { return len(m.sinks) }
