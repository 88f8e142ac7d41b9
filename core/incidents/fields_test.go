package incidents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tenantdesk/core/apperr"
	"tenantdesk/core/auth"
	"tenantdesk/core/document"
	"tenantdesk/core/rbac"
	"tenantdesk/core/store"
	"tenantdesk/core/tenancy"
)

var outageFields = []store.FieldDef{
	{Name: "server", Type: FieldText, Label: "Server", Required: true},
	{Name: "notes", Type: FieldTextarea, Label: "Notes"},
	{Name: "users", Type: FieldNumber, Label: "Affected users"},
	{Name: "impact", Type: FieldSelect, Label: "Impact", Options: []string{"low", "high"}},
	{Name: "customer_facing", Type: FieldCheckbox, Label: "Customer facing"},
}

func TestValidateData(t *testing.T) {
	ok := document.New().
		Set("server", document.String("web-01")).
		Set("users", document.Number(120)).
		Set("impact", document.String("high")).
		Set("customer_facing", document.Bool(true)).
		Set("notes", document.Null())
	assert.NoError(t, ValidateData(outageFields, ok))

	bad := []*document.Document{
		document.New(),
		document.New().Set("server", document.String("")),
		document.New().Set("server", document.String("a")).Set("users", document.String("many")),
		document.New().Set("server", document.String("a")).Set("customer_facing", document.String("yes")),
		document.New().Set("server", document.String("a")).Set("impact", document.String("medium")),
		document.New().Set("server", document.String("a")).Set("extra", document.String("x")),
	}
	for i, d := range bad {
		assert.True(t, apperr.Is(ValidateData(outageFields, d), apperr.KindValidation), "case %d", i)
	}
}

func TestValidateFieldDefs(t *testing.T) {
	assert.NoError(t, ValidateFieldDefs(outageFields))
	assert.Error(t, ValidateFieldDefs([]store.FieldDef{{Name: "", Type: FieldText}}))
	assert.Error(t, ValidateFieldDefs([]store.FieldDef{{Name: "a", Type: FieldText}, {Name: "a", Type: FieldNumber}}))
	assert.Error(t, ValidateFieldDefs([]store.FieldDef{{Name: "a", Type: "date"}}))
	assert.Error(t, ValidateFieldDefs([]store.FieldDef{{Name: "a", Type: FieldSelect}}))
}

func TestVisibleTo(t *testing.T) {
	f := NewCommentFilter(tenancy.NewScope(rbac.MustPolicy(rbac.DefaultRoles())))
	comments := []store.Comment{
		{ID: "1", Content: "public"},
		{ID: "2", Content: "staff", IsInternal: true},
		{ID: "3", Content: "public again"},
	}
	op := auth.Actor{ID: "op", Role: rbac.RoleOperator}
	client := auth.Actor{ID: "c", Role: rbac.RoleClient, TenantID: "t"}
	assert.Len(t, f.VisibleTo(op, comments), 3)
	visible := f.VisibleTo(client, comments)
	assert.Len(t, visible, 2)
	for _, c := range visible {
		assert.False(t, c.IsInternal)
	}
	assert.Len(t, comments, 3)
}
