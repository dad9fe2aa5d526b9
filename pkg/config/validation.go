package config

import (
	"reflect"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond `required:"true"`. Validate runs after the required-field pass.
// A *gwerr.Error is returned unchanged; any other error is wrapped with
// [gwerr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, coded := gwerr.AsError(err); coded {
				return err
			}
			return gwerr.Wrap(err, gwerr.CodeValidation,
				"config: custom validation failed")
		}
	}

	return nil
}

// validateRequired walks nested structs and reports the dotted path of
// the first required field left zero (e.g. "Auth.TokenSecret").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if isNested(field) {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return gwerr.Newf(gwerr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
