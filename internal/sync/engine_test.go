package sync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/helpdesk-sync/internal/crossref"
	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/sink"
	"github.com/nhle/helpdesk-sync/internal/source"
)

// fakeSource serves canned data and records the calls the engine makes.
type fakeSource struct {
	orgs, users, forums, topics []model.Attributes
	fields                      []source.TicketField
	pages                       map[source.Cursor]*source.TicketPage
	pageErr                     map[source.Cursor]error
	comments                    map[int64][]model.Attributes

	orgsErr, usersErr, commentsErr error

	starts      []time.Time
	requested   []source.Cursor
	commentReqs []int64
}

func (f *fakeSource) Type() source.SourceType { return source.SourceTypeZendesk }

func (f *fakeSource) ValidateConnection(context.Context) (string, error) { return "agent", nil }

func (f *fakeSource) ListOrganizations(context.Context) ([]model.Attributes, error) {
	return f.orgs, f.orgsErr
}

func (f *fakeSource) ListUsers(context.Context) ([]model.Attributes, error) {
	return f.users, f.usersErr
}

func (f *fakeSource) ListForums(context.Context) ([]model.Attributes, error) { return f.forums, nil }

func (f *fakeSource) ListTopics(context.Context) ([]model.Attributes, error) { return f.topics, nil }

func (f *fakeSource) ListTicketFields(context.Context) ([]source.TicketField, error) {
	return f.fields, nil
}

func (f *fakeSource) StartCursor(start time.Time) source.Cursor {
	f.starts = append(f.starts, start)
	return source.Cursor(strconv.FormatInt(start.Unix(), 10))
}

func (f *fakeSource) IncrementalTickets(_ context.Context, cursor source.Cursor) (*source.TicketPage, error) {
	f.requested = append(f.requested, cursor)
	if err, ok := f.pageErr[cursor]; ok {
		return nil, err
	}
	if page, ok := f.pages[cursor]; ok {
		return page, nil
	}
	return &source.TicketPage{}, nil
}

func (f *fakeSource) ListComments(_ context.Context, ticketID int64) ([]model.Attributes, error) {
	f.commentReqs = append(f.commentReqs, ticketID)
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments[ticketID], nil
}

// recordingSink keeps every record it receives.
type recordingSink struct {
	records []*model.Record
	failFor model.RecordType
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Emit(_ context.Context, rec *model.Record) error {
	if rec.Type == s.failFor {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) ofType(typ model.RecordType) []*model.Record {
	var out []*model.Record
	for _, r := range s.records {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func ticket(id int, extra ...any) model.Attributes {
	t := model.Attributes{"id": json.Number(strconv.Itoa(id)), "status": "open"}
	for i := 0; i+1 < len(extra); i += 2 {
		t[extra[i].(string)] = extra[i+1]
	}
	return t
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ticketsOnly() Options {
	return Options{Tickets: true, WindowDays: 1}
}

func newTestEngine(src *fakeSource, snk sink.Sink, opts Options) *Engine {
	return NewEngine(src, snk, opts, WithClock(func() time.Time { return fixedNow }))
}

func TestExportStart(t *testing.T) {
	src := &fakeSource{}
	newTestEngine(src, &recordingSink{}, Options{Tickets: true, WindowDays: 3}).RunCycle(context.Background())
	newTestEngine(src, &recordingSink{}, Options{Tickets: true, WindowDays: model.FetchAllWindow}).RunCycle(context.Background())

	require.Len(t, src.starts, 2)
	assert.Equal(t, fixedNow.AddDate(0, 0, -3), src.starts[0])
	assert.Equal(t, int64(0), src.starts[1].Unix())
}

func TestCursorThatNeverAdvancesStops(t *testing.T) {
	start := source.Cursor(strconv.FormatInt(fixedNow.AddDate(0, 0, -1).Unix(), 10))
	src := &fakeSource{
		pages: map[source.Cursor]*source.TicketPage{
			start: {Tickets: []model.Attributes{ticket(1)}, Next: start},
		},
	}
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, ticketsOnly()).RunCycle(context.Background())

	assert.Equal(t, []source.Cursor{start}, src.requested)
	assert.Equal(t, 1, stats.Pages)
	assert.Len(t, snk.ofType(model.RecordTypeTicket), 1)
	assert.Zero(t, stats.StageErrors)
}

func TestCursorRepeatAfterAdvance(t *testing.T) {
	start := source.Cursor(strconv.FormatInt(fixedNow.AddDate(0, 0, -1).Unix(), 10))
	src := &fakeSource{
		pages: map[source.Cursor]*source.TicketPage{
			start: {Tickets: []model.Attributes{ticket(1)}, Next: "200"},
			"200": {Tickets: []model.Attributes{ticket(2)}, Next: "200"},
		},
	}
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, ticketsOnly()).RunCycle(context.Background())

	assert.Equal(t, []source.Cursor{start, "200"}, src.requested)
	assert.Equal(t, 2, stats.Pages)
	assert.Len(t, snk.records, 2)
}

func TestPaginationEndings(t *testing.T) {
	start := source.Cursor(strconv.FormatInt(fixedNow.AddDate(0, 0, -1).Unix(), 10))

	tests := []struct {
		name       string
		pages      map[source.Cursor]*source.TicketPage
		pageErr    map[source.Cursor]error
		wantReqs   int
		wantEmit   int
		wantStErrs int
	}{
		{
			name: "empty page",
			pages: map[source.Cursor]*source.TicketPage{
				start: {Tickets: []model.Attributes{ticket(1)}, Next: "2"},
				"2":   {Next: "3"},
			},
			wantReqs: 2,
			wantEmit: 1,
		},
		{
			name: "too recent",
			pages: map[source.Cursor]*source.TicketPage{
				start: {Tickets: []model.Attributes{ticket(1)}, Next: "2"},
			},
			pageErr:  map[source.Cursor]error{"2": source.ErrStartTimeTooRecent},
			wantReqs: 2,
			wantEmit: 1,
		},
		{
			name: "end of stream",
			pages: map[source.Cursor]*source.TicketPage{
				start: {Tickets: []model.Attributes{ticket(1)}, Next: "2", EndOfStream: true},
			},
			wantReqs: 1,
			wantEmit: 1,
		},
		{
			name: "no next cursor",
			pages: map[source.Cursor]*source.TicketPage{
				start: {Tickets: []model.Attributes{ticket(1)}},
			},
			wantReqs: 1,
			wantEmit: 1,
		},
		{
			name: "fetch error",
			pages: map[source.Cursor]*source.TicketPage{
				start: {Tickets: []model.Attributes{ticket(1)}, Next: "2"},
			},
			pageErr:    map[source.Cursor]error{"2": errors.New("connection reset")},
			wantReqs:   2,
			wantEmit:   1,
			wantStErrs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{pages: tt.pages, pageErr: tt.pageErr}
			snk := &recordingSink{}

			stats := newTestEngine(src, snk, ticketsOnly()).RunCycle(context.Background())

			assert.Len(t, src.requested, tt.wantReqs)
			assert.Len(t, snk.records, tt.wantEmit)
			assert.Equal(t, tt.wantStErrs, stats.StageErrors)
		})
	}
}

func TestDeletedTicketsAreNotEmitted(t *testing.T) {
	start := source.Cursor(strconv.FormatInt(fixedNow.AddDate(0, 0, -1).Unix(), 10))
	src := &fakeSource{
		pages: map[source.Cursor]*source.TicketPage{
			start: {Tickets: []model.Attributes{
				ticket(1),
				ticket(2, "status", "deleted"),
				ticket(3, "status", "solved"),
			}},
		},
	}
	snk := &recordingSink{}

	newTestEngine(src, snk, Options{Tickets: true, Comments: true, WindowDays: 1}).RunCycle(context.Background())

	var ids []int64
	for _, r := range snk.records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
	assert.Equal(t, []int64{1, 3}, src.commentReqs)
}

func TestUnparseableTicketIsSkipped(t *testing.T) {
	start := source.Cursor(strconv.FormatInt(fixedNow.AddDate(0, 0, -1).Unix(), 10))
	src := &fakeSource{
		pages: map[source.Cursor]*source.TicketPage{
			start: {Tickets: []model.Attributes{
				ticket(1, "updated_at", "yesterday-ish"),
				ticket(2),
			}},
		},
	}
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, ticketsOnly()).RunCycle(context.Background())

	require.Len(t, snk.records, 1)
	assert.Equal(t, int64(2), snk.records[0].ID)
	assert.Equal(t, 1, stats.Skipped)
}

// fullSource serves one of every entity, with the ticket page keyed on the
// cursor of a one day window.
func fullSource() *fakeSource {
	return fullSourceFrom(fixedNow.AddDate(0, 0, -1))
}

// fullSourceFrom is fullSource with the ticket page keyed on start.
func fullSourceFrom(start time.Time) *fakeSource {
	cursor := source.Cursor(strconv.FormatInt(start.Unix(), 10))
	return &fakeSource{
		orgs: []model.Attributes{
			{"id": json.Number("1"), "name": "Acme", "status": "gold", "created_at": "2020-01-01T00:00:00Z"},
		},
		users: []model.Attributes{
			{"id": json.Number("10"), "name": "Jane Agent", "organization_id": json.Number("1")},
			{"id": json.Number("11"), "name": "Lone User", "organization_id": json.Number("99")},
		},
		forums: []model.Attributes{{"id": json.Number("5"), "name": "Announcements"}},
		topics: []model.Attributes{
			{"id": json.Number("50"), "title": "Maintenance", "forum_id": json.Number("5")},
		},
		fields: []source.TicketField{{ID: 100, Title: "Product"}},
		pages: map[source.Cursor]*source.TicketPage{
			cursor: {Tickets: []model.Attributes{
				ticket(42, "organization_name", "Acme", "subject", "Broken", "field_100", "Widget"),
			}},
		},
		comments: map[int64][]model.Attributes{
			42: {
				{"id": json.Number("1"), "author_id": json.Number("10"), "public": true, "body": "C1", "created_at": "2024-05-30T00:00:00Z"},
				{"id": json.Number("2"), "author_id": json.Number("10"), "public": false, "body": "C2", "created_at": "2024-05-31T00:00:00Z"},
				{"id": json.Number("3"), "author_id": json.Number("10"), "public": true, "body": "C3", "created_at": "2024-06-01T00:00:00Z"},
			},
		},
	}
}

func allOptions() Options {
	return Options{
		Organizations:  true,
		Users:          true,
		Tickets:        true,
		Topics:         true,
		Comments:       true,
		AppendComments: true,
		WindowDays:     1,
	}
}

func TestFullCycle(t *testing.T) {
	src := fullSource()
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, allOptions()).RunCycle(context.Background())

	var order []string
	for _, r := range snk.records {
		order = append(order, r.Key())
	}
	assert.Equal(t, []string{
		"organization/1",
		"user/10",
		"user/11",
		"comment/1",
		"comment/2",
		"comment/3",
		"ticket/42",
		"topic/50",
	}, order)
	assert.Equal(t, 8, stats.Emitted)
	assert.Zero(t, stats.StageErrors)

	users := snk.ofType(model.RecordTypeUser)
	assert.Equal(t, "Acme", users[0].Fields["organization_name"])
	_, ok := users[1].Fields["organization_name"]
	assert.False(t, ok)

	tk := snk.ofType(model.RecordTypeTicket)[0]
	assert.Equal(t, int64(1), tk.Fields["org_id"])
	assert.Equal(t, "Widget", tk.Fields["Product"])

	block, ok := tk.Fields["comments"].(string)
	require.True(t, ok)
	assert.Less(t, strings.Index(block, "C3"), strings.Index(block, "C2"))
	assert.Less(t, strings.Index(block, "C2"), strings.Index(block, "C1"))

	c := snk.ofType(model.RecordTypeComment)[0]
	assert.Equal(t, "Jane Agent", c.Fields["author_name"])
	assert.Equal(t, "Acme", c.Fields["author_organization_name"])
	assert.Equal(t, "Broken", c.Fields["ticket_subject"])
	assert.Equal(t, "gold", c.Fields["ticket_org_status"])

	topic := snk.ofType(model.RecordTypeTopic)[0]
	assert.Equal(t, "Announcements", topic.Fields["forum_name"])
}

func TestTicketNamesResolvedFromIDs(t *testing.T) {
	src := fullSource()
	for cursor := range src.pages {
		src.pages[cursor] = &source.TicketPage{Tickets: []model.Attributes{
			ticket(42,
				"organization_id", json.Number("1"),
				"requester_id", json.Number("10"),
				"assignee_id", json.Number("11"),
				"subject", "Broken",
			),
		}}
	}
	snk := &recordingSink{}

	newTestEngine(src, snk, allOptions()).RunCycle(context.Background())

	tk := snk.ofType(model.RecordTypeTicket)[0]
	assert.Equal(t, "Acme", tk.Fields["organization_name"])
	assert.Equal(t, int64(1), tk.Fields["org_id"])
	assert.Equal(t, "Jane Agent", tk.Fields["requester_name"])
	assert.Equal(t, "Lone User", tk.Fields["assignee_name"])

	c := snk.ofType(model.RecordTypeComment)[0]
	assert.Equal(t, "Acme", c.Fields["ticket_organization_name"])
	assert.Equal(t, "Jane Agent", c.Fields["ticket_requester"])
	assert.Equal(t, "Lone User", c.Fields["ticket_assignee"])
	assert.Equal(t, "gold", c.Fields["ticket_org_status"])
}

func TestTicketNamesPresentAreKept(t *testing.T) {
	c := &cycle{Engine: newTestEngine(&fakeSource{}, &recordingSink{}, ticketsOnly()), tables: crossref.NewTables()}
	c.tables.AddOrganization(1, model.Attributes{"name": "Acme"})

	raw := model.Attributes{"organization_id": json.Number("1"), "organization_name": "Renamed"}
	got := c.withNames(raw)

	assert.Equal(t, "Renamed", got["organization_name"])

	raw = model.Attributes{"organization_id": json.Number("1")}
	got = c.withNames(raw)
	assert.Equal(t, "Acme", got["organization_name"])
	_, touched := raw["organization_name"]
	assert.False(t, touched)
}

func TestStageFailureDoesNotAbortCycle(t *testing.T) {
	src := fullSource()
	src.orgsErr = errors.New("502 bad gateway")
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, allOptions()).RunCycle(context.Background())

	assert.Equal(t, 1, stats.StageErrors)
	assert.Empty(t, snk.ofType(model.RecordTypeOrganization))
	assert.Len(t, snk.ofType(model.RecordTypeUser), 2)

	tk := snk.ofType(model.RecordTypeTicket)
	require.Len(t, tk, 1)
	_, ok := tk[0].Fields["org_id"]
	assert.False(t, ok)
	assert.Len(t, snk.ofType(model.RecordTypeTopic), 1)
}

func TestCommentFailureStillEmitsTicket(t *testing.T) {
	src := fullSource()
	src.commentsErr = errors.New("timeout")
	snk := &recordingSink{}

	stats := newTestEngine(src, snk, allOptions()).RunCycle(context.Background())

	assert.Equal(t, 1, stats.StageErrors)
	assert.Empty(t, snk.ofType(model.RecordTypeComment))
	require.Len(t, snk.ofType(model.RecordTypeTicket), 1)
	assert.Equal(t, "", snk.ofType(model.RecordTypeTicket)[0].Fields["comments"])
}

func TestSinkFailureIsCounted(t *testing.T) {
	src := fullSource()
	snk := &recordingSink{failFor: model.RecordTypeComment}

	stats := newTestEngine(src, snk, allOptions()).RunCycle(context.Background())

	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 5, stats.Emitted)
	assert.Len(t, snk.ofType(model.RecordTypeTicket), 1)
}

func TestTablesAreRebuiltEachCycle(t *testing.T) {
	src := fullSource()
	snk := &recordingSink{}
	engine := newTestEngine(src, snk, allOptions())

	engine.RunCycle(context.Background())
	src.orgsErr = errors.New("gone")
	snk.records = nil
	engine.RunCycle(context.Background())

	tk := snk.ofType(model.RecordTypeTicket)
	require.Len(t, tk, 1)
	_, ok := tk[0].Fields["org_id"]
	assert.False(t, ok)
}

func TestUnchangedDataProducesIdenticalOutput(t *testing.T) {
	render := func() string {
		snk := &recordingSink{}
		newTestEngine(fullSource(), snk, allOptions()).RunCycle(context.Background())
		var b strings.Builder
		for _, r := range snk.records {
			data, err := json.Marshal(r)
			require.NoError(t, err)
			b.Write(data)
			b.WriteByte('\n')
		}
		return b.String()
	}

	assert.Equal(t, render(), render())
}

func TestDisabledStagesAreNotFetched(t *testing.T) {
	src := fullSource()
	snk := &recordingSink{}

	newTestEngine(src, snk, Options{Topics: true, WindowDays: 1}).RunCycle(context.Background())

	assert.Empty(t, src.requested)
	require.Len(t, snk.records, 1)
	assert.Equal(t, model.RecordTypeTopic, snk.records[0].Type)
}
