package incidents

import (
	"fmt"
	"strings"

	"tenantdesk/core/apperr"
	"tenantdesk/core/document"
	"tenantdesk/core/store"
)

const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldNumber   = "number"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
)

func validFieldType(t string) bool {
	switch t {
	case FieldText, FieldTextarea, FieldNumber, FieldSelect, FieldCheckbox:
		return true
	}
	return false
}

// ValidateFieldDefs checks an incident type's form definition.
func ValidateFieldDefs(fields []store.FieldDef) error {
	seen := map[string]struct{}{}
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return apperr.Validation("incident_types.invalid_field", fmt.Sprintf("field %d has no name", i+1))
		}
		if _, dup := seen[name]; dup {
			return apperr.Validation("incident_types.duplicate_field", "duplicate field "+name)
		}
		seen[name] = struct{}{}
		if !validFieldType(f.Type) {
			return apperr.Validation("incident_types.invalid_field", fmt.Sprintf("field %s has unknown type %q", name, f.Type))
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return apperr.Validation("incident_types.invalid_field", "select field "+name+" needs options")
		}
	}
	return nil
}

// ValidateData checks an incident's data document against the owning type's fields.
// Unknown keys and values of the wrong kind are rejected; null counts as absent.
func ValidateData(fields []store.FieldDef, data *document.Document) error {
	defs := make(map[string]store.FieldDef, len(fields))
	for _, f := range fields {
		defs[f.Name] = f
	}
	for _, key := range data.Keys() {
		if _, ok := defs[key]; !ok {
			return apperr.Validation("incidents.unknown_field", "unknown data field "+key)
		}
	}
	for _, f := range fields {
		v, ok := data.Get(f.Name)
		if !ok || v.IsNull() || (f.Required && v.IsBlank()) {
			if f.Required {
				return apperr.Validation("incidents.missing_field", "missing required field "+f.Name)
			}
			continue
		}
		if err := checkFieldValue(f, v); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldValue(f store.FieldDef, v document.Value) error {
	bad := apperr.Validation("incidents.invalid_field", fmt.Sprintf("field %s expects %s", f.Name, f.Type))
	switch f.Type {
	case FieldText, FieldTextarea:
		if _, ok := v.AsString(); !ok {
			return bad
		}
	case FieldNumber:
		if _, ok := v.AsNumber(); !ok {
			return bad
		}
	case FieldCheckbox:
		if _, ok := v.AsBool(); !ok {
			return bad
		}
	case FieldSelect:
		s, ok := v.AsString()
		if !ok {
			return bad
		}
		for _, opt := range f.Options {
			if opt == s {
				return nil
			}
		}
		return apperr.Validation("incidents.invalid_field", fmt.Sprintf("field %s does not allow %q", f.Name, s))
	}
	return nil
}
