package sync

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/normalize"
	"github.com/nhle/helpdesk-sync/internal/source"
)

// deletedStatus marks tickets the incremental export still lists after
// deletion.
const deletedStatus = "deleted"

// exportStart is the first instant covered by the incremental export.
func (c *cycle) exportStart() time.Time {
	if c.opts.WindowDays == model.FetchAllWindow {
		return time.Unix(0, 0).UTC()
	}
	return c.now().AddDate(0, 0, -c.opts.WindowDays)
}

// fetchTickets walks the incremental ticket export. The loop ends on an
// empty page, a "start time too recent" answer, the end of the stream, a
// fetch error, or a next cursor equal to the cursor that was just
// requested.
func (c *cycle) fetchTickets(ctx context.Context) {
	cursor := c.src.StartCursor(c.exportStart())
	tickets := 0

	for {
		page, err := c.src.IncrementalTickets(ctx, cursor)
		if errors.Is(err, source.ErrStartTimeTooRecent) {
			c.logger.Debug("incremental export caught up", "cursor", cursor)
			break
		}
		if err != nil {
			c.stageFailed("tickets", err)
			break
		}

		c.stats.Pages++
		c.metrics.pages.Inc()

		if len(page.Tickets) == 0 {
			break
		}

		for _, raw := range page.Tickets {
			if raw.String("status") == deletedStatus {
				continue
			}
			c.processTicket(ctx, raw)
			tickets++
		}

		if page.EndOfStream || page.Next == "" {
			break
		}
		if page.Next == cursor {
			c.logger.Debug("incremental export cursor did not advance", "cursor", cursor)
			break
		}
		cursor = page.Next
	}

	c.logger.Info("tickets fetched", "count", tickets, "pages", c.stats.Pages)
}

// processTicket normalizes one ticket, runs the comment stage for it when
// enabled, and emits the ticket last so the comment block can be attached.
func (c *cycle) processTicket(ctx context.Context, raw model.Attributes) {
	raw = c.withNames(raw)

	rec, err := c.normalizer.Ticket(raw)
	if err != nil {
		c.skip(model.RecordTypeTicket, err)
		return
	}

	if c.opts.Comments {
		comments := c.processComments(ctx, rec.ID, raw)
		if c.opts.AppendComments {
			rec.Set("comments", normalize.CommentBlock(comments))
		}
	}

	c.emit(ctx, rec)
}

// processComments emits the comments of one ticket and returns the
// normalized records.
func (c *cycle) processComments(ctx context.Context, ticketID int64, ticket model.Attributes) []*model.Record {
	raw, err := c.src.ListComments(ctx, ticketID)
	if err != nil {
		c.stageFailed("comments", err)
		return nil
	}

	records := make([]*model.Record, 0, len(raw))
	for _, comment := range raw {
		rec, err := c.normalizer.Comment(comment, ticket)
		if err != nil {
			c.skip(model.RecordTypeComment, err)
			continue
		}
		c.emit(ctx, rec)
		records = append(records, rec)
	}
	return records
}

// ticketNameRefs pairs each ticket name attribute with the id attribute it
// can be resolved from.
var ticketNameRefs = []struct {
	name, id string
	org      bool
}{
	{name: "organization_name", id: "organization_id", org: true},
	{name: "requester_name", id: "requester_id"},
	{name: "assignee_name", id: "assignee_id"},
}

// withNames fills organization, requester and assignee names the ticket
// only carries as ids, using the cycle's tables. Names already present are
// kept. raw is not modified.
func (c *cycle) withNames(raw model.Attributes) model.Attributes {
	var out model.Attributes
	for _, ref := range ticketNameRefs {
		if raw.String(ref.name) != "" {
			continue
		}
		id, ok := raw.Int64(ref.id)
		if !ok {
			continue
		}

		var name string
		if ref.org {
			name, _ = c.tables.OrganizationName(id)
		} else if user, ok := c.tables.User(id); ok {
			name = user.String("name")
		}
		if name == "" {
			continue
		}

		if out == nil {
			out = raw.Clone()
		}
		out[ref.name] = name
	}
	if out == nil {
		return raw
	}
	return out
}
