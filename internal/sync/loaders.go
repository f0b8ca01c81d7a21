package sync

import (
	"context"
	"errors"

	"github.com/nhle/helpdesk-sync/internal/model"
	"github.com/nhle/helpdesk-sync/internal/normalize"
)

var errMissingID = errors.New("missing numeric id")

// loadOrganizations emits every organization and indexes it by id and name.
func (c *cycle) loadOrganizations(ctx context.Context) {
	orgs, err := c.src.ListOrganizations(ctx)
	if err != nil {
		c.stageFailed("organizations", err)
		return
	}

	for _, raw := range orgs {
		id, ok := raw.Int64("id")
		if !ok {
			c.skip(model.RecordTypeOrganization, errMissingID)
			continue
		}
		c.tables.AddOrganization(id, normalize.Flatten(raw))

		rec, err := c.normalizer.Entity(model.RecordTypeOrganization, raw)
		if err != nil {
			c.skip(model.RecordTypeOrganization, err)
			continue
		}
		c.emit(ctx, rec)
	}

	c.logger.Info("organizations loaded", "count", len(orgs))
}

// loadUsers emits every user with its organization's name attached and
// indexes it by id.
func (c *cycle) loadUsers(ctx context.Context) {
	users, err := c.src.ListUsers(ctx)
	if err != nil {
		c.stageFailed("users", err)
		return
	}

	for _, raw := range users {
		id, ok := raw.Int64("id")
		if !ok {
			c.skip(model.RecordTypeUser, errMissingID)
			continue
		}

		user := raw.Clone()
		if orgID, ok := user.Int64("organization_id"); ok {
			if name, ok := c.tables.OrganizationName(orgID); ok {
				user["organization_name"] = name
			}
		}
		c.tables.AddUser(id, normalize.Flatten(user))

		rec, err := c.normalizer.Entity(model.RecordTypeUser, user)
		if err != nil {
			c.skip(model.RecordTypeUser, err)
			continue
		}
		c.emit(ctx, rec)
	}

	c.logger.Info("users loaded", "count", len(users))
}

// loadForums fills the forum table. Forums are only a lookup for topics
// and are not emitted.
func (c *cycle) loadForums(ctx context.Context) {
	forums, err := c.src.ListForums(ctx)
	if err != nil {
		c.stageFailed("forums", err)
		return
	}

	for _, raw := range forums {
		if id, ok := raw.Int64("id"); ok {
			c.tables.AddForum(id, raw.String("name"))
		}
	}

	c.logger.Info("forums loaded", "count", len(forums))
}

// loadTicketFields fills the field name table used to rename custom fields.
func (c *cycle) loadTicketFields(ctx context.Context) {
	fields, err := c.src.ListTicketFields(ctx)
	if err != nil {
		c.stageFailed("ticket_fields", err)
		return
	}

	for _, f := range fields {
		c.tables.AddFieldName(f.ID, f.Title)
	}

	c.logger.Info("ticket fields loaded", "count", len(fields))
}
