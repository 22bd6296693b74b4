package types

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validate is shared by schema and config validation. validator.Validate
// caches struct metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	return v
}

// IsIdentifier reports whether s is safe to splice into SQL as a table or
// column name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
