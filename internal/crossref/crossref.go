// Package crossref holds the per-cycle lookup tables that let records of
// one entity type be enriched with names and attributes of another.
//
// A Tables value is built empty at the start of every sync cycle, filled
// by the reference loaders, read by the ticket, comment and topic stages,
// and dropped when the cycle ends. It is never shared between goroutines.
package crossref

import (
	"regexp"
	"strconv"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// customFieldPattern matches custom field keys (e.g., field_360001234567).
var customFieldPattern = regexp.MustCompile(`^field_(\d+)$`)

// CustomFieldID extracts the numeric id from a custom field key.
func CustomFieldID(key string) (int64, bool) {
	m := customFieldPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsCustomField reports whether key names a custom field.
func IsCustomField(key string) bool {
	return customFieldPattern.MatchString(key)
}

// Tables are the lookup tables of one sync cycle.
type Tables struct {
	organizations map[int64]model.Attributes
	orgIDsByName  map[string]int64
	users         map[int64]model.Attributes
	forums        map[int64]string
	fieldNames    map[string]string
}

// NewTables returns empty tables.
func NewTables() *Tables {
	return &Tables{
		organizations: make(map[int64]model.Attributes),
		orgIDsByName:  make(map[string]int64),
		users:         make(map[int64]model.Attributes),
		forums:        make(map[int64]string),
		fieldNames:    make(map[string]string),
	}
}

// AddOrganization indexes an organization by id and by name. The first
// organization seen with a given name keeps the name slot.
func (t *Tables) AddOrganization(id int64, org model.Attributes) {
	t.organizations[id] = org
	if name := org.String("name"); name != "" {
		if _, taken := t.orgIDsByName[name]; !taken {
			t.orgIDsByName[name] = id
		}
	}
}

// Organization returns the organization with the given id.
func (t *Tables) Organization(id int64) (model.Attributes, bool) {
	org, ok := t.organizations[id]
	return org, ok
}

// OrganizationName returns the name of the organization with the given id.
func (t *Tables) OrganizationName(id int64) (string, bool) {
	org, ok := t.organizations[id]
	if !ok {
		return "", false
	}
	return org.String("name"), true
}

// OrganizationIDByName resolves an organization name to its id.
func (t *Tables) OrganizationIDByName(name string) (int64, bool) {
	if name == "" {
		return 0, false
	}
	id, ok := t.orgIDsByName[name]
	return id, ok
}

// OrganizationByName resolves an organization name to its attributes.
func (t *Tables) OrganizationByName(name string) (model.Attributes, bool) {
	id, ok := t.OrganizationIDByName(name)
	if !ok {
		return nil, false
	}
	return t.Organization(id)
}

// AddUser indexes a user by id.
func (t *Tables) AddUser(id int64, user model.Attributes) {
	t.users[id] = user
}

// User returns the user with the given id.
func (t *Tables) User(id int64) (model.Attributes, bool) {
	u, ok := t.users[id]
	return u, ok
}

// AddForum records a forum name.
func (t *Tables) AddForum(id int64, name string) {
	t.forums[id] = name
}

// ForumName returns the name of the forum with the given id.
func (t *Tables) ForumName(id int64) (string, bool) {
	name, ok := t.forums[id]
	return name, ok
}

// AddFieldName maps a custom field id to its human-readable label.
func (t *Tables) AddFieldName(id int64, label string) {
	t.fieldNames["field_"+strconv.FormatInt(id, 10)] = label
}

// FieldName returns the label of a custom field key such as "field_123".
func (t *Tables) FieldName(key string) (string, bool) {
	label, ok := t.fieldNames[key]
	return label, ok
}

// Counts reports how many entries each table holds.
func (t *Tables) Counts() (orgs, users, forums, fields int) {
	return len(t.organizations), len(t.users), len(t.forums), len(t.fieldNames)
}
