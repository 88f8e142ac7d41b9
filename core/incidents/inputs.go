package incidents

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"tenantdesk/core/apperr"
	"tenantdesk/core/document"
	"tenantdesk/core/store"
)

type CreateInput struct {
	TenantID       string             `json:"tenantId" validate:"required,uuid"`
	IncidentTypeID string             `json:"incidentTypeId" validate:"required,uuid"`
	Title          string             `json:"title" validate:"required,max=255"`
	Description    *string            `json:"description"`
	Priority       *int               `json:"priority" validate:"omitempty,min=1,max=5"`
	Data           *document.Document `json:"data"`
}

type ListFilter struct {
	Status   string `json:"status"`
	TenantID string `json:"tenantId"`
}

type CommentInput struct {
	IncidentID string `json:"incidentId" validate:"required,uuid"`
	Content    string `json:"content" validate:"required,max=10000"`
	IsInternal bool   `json:"isInternal"`
}

type TenantInput struct {
	Name        string             `json:"name" validate:"required,max=255"`
	Slug        string             `json:"slug" validate:"required,max=100,slug"`
	Description string             `json:"description" validate:"max=2000"`
	Config      *document.Document `json:"config"`
	IsActive    *bool              `json:"isActive"`
}

type UserInput struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	Name     string  `json:"name" validate:"required,max=255"`
	Role     string  `json:"role" validate:"required,oneof=operator client"`
	TenantID *string `json:"tenantId" validate:"omitempty,uuid"`
}

type IncidentTypeInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description" validate:"max=2000"`
	Priority    *int             `json:"priority" validate:"omitempty,min=1,max=5"`
	Fields      []store.FieldDef `json:"fields"`
	IsActive    *bool            `json:"isActive"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, r := range s {
			if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
				return false
			}
		}
		return s != "" && !strings.HasPrefix(s, "-") && !strings.HasSuffix(s, "-")
	})
	return v
}

// checkInput runs struct validation and reports the first failing field as
// "<prefix>.invalid_<field>".
func checkInput(v *validator.Validate, prefix string, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := snake(fe.Field())
		return apperr.Validation(prefix+".invalid_"+field, describe(fe))
	}
	return apperr.Validation(prefix+".invalid_input", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a uuid"
	case "email":
		return fe.Field() + " must be an email address"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "min", "max":
		return fe.Field() + " must satisfy " + fe.Tag() + "=" + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
