package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// FieldError is one failed rule, keyed by the config path of the field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error collects every field that failed validation.
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + ": " + f.Message)
	}
	return b.String()
}

var instance = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(configKey)
	return v
})

// configKey names a field by its mapstructure key, falling back to the
// snake_cased Go name.
func configKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
	if name == "" || name == "-" {
		return toSnakeCase(f.Name)
	}
	return name
}

// Validate checks s against its `validate` tags and reports every failure.
func Validate(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return &Error{Fields: []FieldError{{Field: "-", Message: err.Error()}}}
	}

	out := &Error{Fields: make([]FieldError, len(failures))}
	for i, fe := range failures {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		out.Fields[i] = FieldError{Field: path, Message: describe(fe)}
	}
	return out
}

var messages = map[string]string{
	"required": "is required",
	"gt":       "must be greater than %s",
	"gte":      "must be at least %s",
	"min":      "must be at least %s",
	"lt":       "must be less than %s",
	"lte":      "must be at most %s",
	"max":      "must be at most %s",
	"gtefield": "must be at least %s",
	"ltefield": "must not exceed %s",
	"url":      "must be a valid URL",
	"oneof":    "must be one of: %s",
}

func describe(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	param := fe.Param()
	if strings.HasSuffix(fe.Tag(), "field") {
		param = toSnakeCase(param)
	}
	return strings.Replace(msg, "%s", param, 1)
}

func toSnakeCase(s string) string {
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
