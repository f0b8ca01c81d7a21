package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// commentSeparator opens every entry of an appended comment block.
const commentSeparator = "----------------------------------------"

// Ticket normalizes a raw ticket from the incremental export.
func (n *Normalizer) Ticket(ticket model.Attributes) (*model.Record, error) {
	return n.Entity(model.RecordTypeTicket, ticket)
}

// Comment normalizes a raw comment and enriches it with fields of its
// parent ticket, the ticket's organization, and the comment author.
func (n *Normalizer) Comment(comment model.Attributes, ticket model.Attributes) (*model.Record, error) {
	rec, err := n.Entity(model.RecordTypeComment, comment)
	if err != nil {
		return nil, err
	}

	if lon, lat, ok := geolocation(comment); ok {
		rec.Set("geolocation", []float64{lon, lat})
	}

	ticketID, _ := ticket.Int64("id")
	orgName := ticket.String("organization_name")

	rec.Set("ticket_id", ticketID)
	rec.Set("ticket_subject", ticket.String("subject"))
	rec.Set("ticket_organization_name", orgName)
	rec.Set("ticket_requester", ticket.String("requester_name"))
	rec.Set("ticket_assignee", ticket.String("assignee_name"))

	if org, ok := n.tables.OrganizationByName(orgName); ok {
		rec.Set("ticket_org_status", org.String("status"))
		createdAt, err := Timestamp(org["created_at"])
		if err == nil && createdAt != "" {
			rec.Set("ticket_org_created_at", createdAt)
		}
	}

	if authorID, ok := comment.Int64("author_id"); ok {
		if user, ok := n.tables.User(authorID); ok {
			rec.Set("author_name", user.String("name"))
			if orgID, ok := user.Int64("organization_id"); ok {
				if name, ok := n.tables.OrganizationName(orgID); ok {
					rec.Set("author_organization_name", name)
				}
			}
		}
	}

	return rec, nil
}

// geolocation returns a comment's longitude and latitude when both are
// present and numeric.
func geolocation(comment model.Attributes) (lon, lat float64, ok bool) {
	lon, okLon := toFloat(comment["longitude"])
	lat, okLat := toFloat(comment["latitude"])
	return lon, lat, okLon && okLat
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		return f, err == nil
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// CommentBlock renders normalized comment records as one text block,
// most recent first. Comments with equal creation times are ordered by
// descending id.
func CommentBlock(comments []*model.Record) string {
	sorted := make([]*model.Record, len(comments))
	copy(sorted, comments)

	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := fieldString(sorted[i], "created_at"), fieldString(sorted[j], "created_at")
		if ci != cj {
			return ci > cj
		}
		return sorted[i].ID > sorted[j].ID
	})

	var b strings.Builder
	for _, c := range sorted {
		public, _ := c.Fields["public"].(bool)
		fmt.Fprintf(&b,
			"%s\nPublic: %t\nAuthor: %s\nCreated at: %s\n\n%s\n",
			commentSeparator,
			public,
			fieldString(c, "author_name"),
			fieldString(c, "created_at"),
			fieldString(c, "body"),
		)
	}
	return b.String()
}

func fieldString(rec *model.Record, key string) string {
	return model.Attributes(rec.Fields).String(key)
}
