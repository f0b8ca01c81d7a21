package crossref

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/helpdesk-sync/internal/model"
)

func TestCustomFieldID(t *testing.T) {
	id, ok := CustomFieldID("field_360001234567")
	assert.True(t, ok)
	assert.Equal(t, int64(360001234567), id)

	for _, key := range []string{"field_", "field_abc", "custom_field_1", "field_1_x"} {
		_, ok := CustomFieldID(key)
		assert.False(t, ok, key)
		assert.False(t, IsCustomField(key), key)
	}
}

func TestOrganizationLookups(t *testing.T) {
	tables := NewTables()
	tables.AddOrganization(1, model.Attributes{"id": json.Number("1"), "name": "Acme", "status": "gold"})
	tables.AddOrganization(2, model.Attributes{"id": json.Number("2"), "name": "Acme"})
	tables.AddOrganization(3, model.Attributes{"id": json.Number("3")})

	name, ok := tables.OrganizationName(2)
	assert.True(t, ok)
	assert.Equal(t, "Acme", name)

	id, ok := tables.OrganizationIDByName("Acme")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id, "first organization keeps the name")

	org, ok := tables.OrganizationByName("Acme")
	assert.True(t, ok)
	assert.Equal(t, "gold", org.String("status"))

	_, ok = tables.OrganizationIDByName("")
	assert.False(t, ok)
	_, ok = tables.OrganizationName(99)
	assert.False(t, ok)
}

func TestOtherTables(t *testing.T) {
	tables := NewTables()
	tables.AddUser(10, model.Attributes{"name": "Jane"})
	tables.AddForum(5, "Announcements")
	tables.AddFieldName(100, "Product")

	u, ok := tables.User(10)
	assert.True(t, ok)
	assert.Equal(t, "Jane", u.String("name"))

	forum, ok := tables.ForumName(5)
	assert.True(t, ok)
	assert.Equal(t, "Announcements", forum)

	label, ok := tables.FieldName("field_100")
	assert.True(t, ok)
	assert.Equal(t, "Product", label)
	_, ok = tables.FieldName("field_101")
	assert.False(t, ok)

	orgs, users, forums, fields := tables.Counts()
	assert.Equal(t, []int{0, 1, 1, 1}, []int{orgs, users, forums, fields})
}
