// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateSettings` right after decoding and before the tier
// override.  Field names in errors are the `koanf` keys (e.g. `ENVIRONMENT`)
// rather than Go names, so operators see the variable they must fix.
//
// Rules in use:
//
//   • `oneof`  on ENVIRONMENT,
//   • `dburl`  on DATABASE_URL (custom, registered below),
//   • `min=1`  on ALLOWED_ORIGINS.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// databaseSchemes lists the accepted DATABASE_URL prefixes.
var databaseSchemes = []string{"postgresql://", "postgresql+psycopg2://", "sqlite://"}

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = val.RegisterValidation("dburl", func(fl validator.FieldLevel) bool {
		return hasDatabaseScheme(fl.Field().String())
	})
	return val
}

func hasDatabaseScheme(url string) bool {
	for _, p := range databaseSchemes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// validateSettings returns nil, or every rule failure joined, each as a
// *FieldError wrapping ErrValidation.
func validateSettings(s *Settings) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &FieldError{
			Field:  fe.Field(),
			Rule:   fe.Tag(),
			Detail: ruleDetail(fe),
			Err:    ErrValidation,
		})
	}
	return errors.Join(errs...)
}

func ruleDetail(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of: %s, got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "dburl":
		return "database URL must be a PostgreSQL or SQLite connection string"
	case "min":
		return "at least one allowed origin must be specified"
	}
	return fe.Error()
}
