package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the config for:
//   - Required fields and value ranges (struct tags)
//   - Duplicate catalog ids
//
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	seen := make(map[string]int, len(cfg.Catalog))
	for i, st := range cfg.Catalog {
		if st.ID == "" {
			continue
		}
		if prev, ok := seen[st.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate catalog id %q (catalog[%d] and catalog[%d])", st.ID, prev, i))
			continue
		}
		seen[st.ID] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "oneof":
		return fmt.Sprintf("%s: %q must be one of [%s]", field, fe.Value(), fe.Param())
	case "excluded_with":
		return fmt.Sprintf("%s: cannot be combined with %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s: %q is not a valid URL", field, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
