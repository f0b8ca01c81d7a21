package zendesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/source"
)

// incrementalTicketsPath is the flat ticket export: custom fields arrive as
// field_<id> keys and related entities by name.
const incrementalTicketsPath = "/api/v2/exports/tickets.json"

// maxListPages bounds the offset-paginated list loops in case the API keeps
// handing out next_page links.
const maxListPages = 100000

var _ source.Source = (*Adapter)(nil)

// Adapter implements source.Source for the Zendesk REST API v2.
type Adapter struct {
	client *Client
}

// NewAdapter creates a new helpdesk source adapter.
func NewAdapter(cfg ClientConfig) *Adapter {
	return &Adapter{client: NewClient(cfg)}
}

// Type returns the source type identifier.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeZendesk
}

// ValidateConnection verifies credentials by calling GET /api/v2/users/me.
// The API answers unauthenticated callers with an anonymous user, which is
// reported as an AuthError.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var resp me
	if err := a.client.Get(ctx, "/api/v2/users/me.json", nil, &resp); err != nil {
		return "", fmt.Errorf("validating helpdesk connection: %w", err)
	}

	if resp.User.ID == nil || resp.User.ID.String() == "" {
		return "", &source.AuthError{
			SourceType: source.SourceTypeZendesk,
			Message:    "credentials were not accepted (anonymous user returned)",
		}
	}

	if resp.User.Name != "" {
		return resp.User.Name, nil
	}
	return resp.User.Email, nil
}

// ListOrganizations returns every organization.
func (a *Adapter) ListOrganizations(ctx context.Context) ([]model.Attributes, error) {
	return a.listAll(ctx, "/api/v2/organizations.json", "organizations")
}

// ListUsers returns every user.
func (a *Adapter) ListUsers(ctx context.Context) ([]model.Attributes, error) {
	return a.listAll(ctx, "/api/v2/users.json", "users")
}

// ListForums returns every forum.
func (a *Adapter) ListForums(ctx context.Context) ([]model.Attributes, error) {
	return a.listAll(ctx, "/api/v2/forums.json", "forums")
}

// ListTopics returns every forum topic.
func (a *Adapter) ListTopics(ctx context.Context) ([]model.Attributes, error) {
	return a.listAll(ctx, "/api/v2/topics.json", "topics")
}

// ListTicketFields returns the id and title of every ticket field.
func (a *Adapter) ListTicketFields(ctx context.Context) ([]source.TicketField, error) {
	var fields []source.TicketField

	next := "/api/v2/ticket_fields.json"
	for page := 0; next != "" && page < maxListPages; page++ {
		var resp ticketFieldPage
		if err := a.client.Get(ctx, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("fetching ticket fields: %w", err)
		}

		for _, f := range resp.TicketFields {
			id, err := f.ID.Int64()
			if err != nil {
				continue
			}
			fields = append(fields, source.TicketField{ID: id, Title: f.Title})
		}

		next = advance(next, resp.NextPage)
	}

	return fields, nil
}

// StartCursor encodes start as the export's start_time parameter.
func (a *Adapter) StartCursor(start time.Time) source.Cursor {
	return source.Cursor(strconv.FormatInt(start.Unix(), 10))
}

// IncrementalTickets fetches one page of the incremental ticket export.
// The returned Next cursor is the start_time carried by the API's
// next_page link.
func (a *Adapter) IncrementalTickets(
	ctx context.Context,
	cursor source.Cursor,
) (*source.TicketPage, error) {
	params := map[string]string{"start_time": string(cursor)}

	var resp incrementalPage
	if err := a.client.Get(ctx, incrementalTicketsPath, params, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.tooRecent() {
			return nil, source.ErrStartTimeTooRecent
		}
		return nil, fmt.Errorf("fetching incremental tickets at %s: %w", cursor, err)
	}

	tickets := resp.items()
	for _, t := range tickets {
		liftCustomFields(t)
	}

	return &source.TicketPage{
		Tickets:     tickets,
		Next:        nextCursor(resp),
		EndOfStream: resp.EndOfStream,
	}, nil
}

// ListComments returns every comment on a ticket. Location data that the
// API nests under metadata.system is lifted to top-level latitude and
// longitude keys.
func (a *Adapter) ListComments(
	ctx context.Context,
	ticketID int64,
) ([]model.Attributes, error) {
	path := fmt.Sprintf("/api/v2/tickets/%d/comments.json", ticketID)

	comments, err := a.listAll(ctx, path, "comments")
	if err != nil {
		return nil, err
	}

	for _, c := range comments {
		liftLocation(c)
	}
	return comments, nil
}

// listAll follows next_page links and collects the items stored under key.
func (a *Adapter) listAll(
	ctx context.Context,
	path string,
	key string,
) ([]model.Attributes, error) {
	var all []model.Attributes

	next := path
	for page := 0; next != "" && page < maxListPages; page++ {
		var raw map[string]json.RawMessage
		if err := a.client.Get(ctx, next, nil, &raw); err != nil {
			return nil, fmt.Errorf("fetching %s: %w", key, err)
		}

		if items, ok := raw[key]; ok {
			var batch []model.Attributes
			if err := decodeJSON(items, &batch); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
			all = append(all, batch...)
		}

		var envelope listPage
		if nextRaw, ok := raw["next_page"]; ok {
			_ = json.Unmarshal(nextRaw, &envelope.NextPage)
		}
		next = advance(next, envelope.NextPage)
	}

	return all, nil
}

// advance returns the next page to request, or "" when there is none or
// the API handed back the page just fetched.
func advance(current string, nextPage *string) string {
	if nextPage == nil || *nextPage == "" || *nextPage == current {
		return ""
	}
	return *nextPage
}

// nextCursor extracts the start_time of the next export page. When the
// link carries no start_time the page's end_time is used instead.
func nextCursor(resp incrementalPage) source.Cursor {
	if resp.NextPage == nil || *resp.NextPage == "" {
		return ""
	}

	if u, err := url.Parse(*resp.NextPage); err == nil {
		if st := u.Query().Get("start_time"); st != "" {
			return source.Cursor(st)
		}
	}

	return source.Cursor(resp.EndTime.String())
}

// liftLocation copies metadata.system.latitude/longitude to the top level
// of a comment unless the comment already carries them.
func liftLocation(comment model.Attributes) {
	metadata, ok := comment["metadata"].(map[string]any)
	if !ok {
		return
	}
	system, ok := metadata["system"].(map[string]any)
	if !ok {
		return
	}
	for _, key := range []string{"latitude", "longitude"} {
		if _, exists := comment[key]; exists {
			continue
		}
		if v, ok := system[key]; ok && v != nil {
			comment[key] = v
		}
	}
}

// liftCustomFields rewrites a custom_fields array of {id, value} entries
// into field_<id> keys. Keys already present are left alone.
func liftCustomFields(ticket model.Attributes) {
	entries, ok := ticket["custom_fields"].([]any)
	if !ok {
		return
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id, ok := model.ToInt64(entry["id"])
		if !ok {
			continue
		}
		key := "field_" + strconv.FormatInt(id, 10)
		if _, exists := ticket[key]; !exists {
			ticket[key] = entry["value"]
		}
	}
	delete(ticket, "custom_fields")
}
