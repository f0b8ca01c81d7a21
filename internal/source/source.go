package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// AuthError indicates that authentication has failed for a source.
// It is returned by source clients when a 401 response is received or
// the API reports an anonymous caller.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrStartTimeTooRecent is returned by IncrementalTickets when the
// upstream refuses a start time that is too close to now. It marks the
// normal end of an incremental export, not a failure.
var ErrStartTimeTooRecent = errors.New("incremental export start time too recent")

// SourceType identifies the kind of helpdesk integration.
type SourceType string

const (
	SourceTypeZendesk SourceType = "zendesk"
)

// Cursor is an opaque incremental export position. Two cursors are the
// same position exactly when they are equal.
type Cursor string

// TicketPage is one page of the incremental ticket export.
type TicketPage struct {
	// Tickets holds the raw ticket attributes in export order.
	Tickets []model.Attributes

	// Next is the cursor for the following page. Empty when the upstream
	// returned no next page.
	Next Cursor

	// EndOfStream is set when the upstream explicitly marks the page as
	// the last one.
	EndOfStream bool
}

// TicketField is one entry of the ticket field metadata endpoint.
type TicketField struct {
	ID    int64
	Title string
}

// Source defines the upstream operations the sync engine consumes.
// Pagination of the list operations, authentication and rate-limit
// retry are the implementation's concern.
type Source interface {
	// Type returns the source type identifier.
	Type() SourceType

	// ValidateConnection verifies credentials and connectivity.
	// Returns the authenticated agent's display name on success.
	ValidateConnection(ctx context.Context) (string, error)

	ListOrganizations(ctx context.Context) ([]model.Attributes, error)
	ListUsers(ctx context.Context) ([]model.Attributes, error)
	ListForums(ctx context.Context) ([]model.Attributes, error)
	ListTopics(ctx context.Context) ([]model.Attributes, error)
	ListTicketFields(ctx context.Context) ([]TicketField, error)

	// StartCursor returns the cursor of the first incremental export page
	// for tickets updated at or after start.
	StartCursor(start time.Time) Cursor

	// IncrementalTickets fetches the export page at cursor.
	IncrementalTickets(ctx context.Context, cursor Cursor) (*TicketPage, error)

	// ListComments returns every comment on a ticket in creation order.
	ListComments(ctx context.Context, ticketID int64) ([]model.Attributes, error)
}
