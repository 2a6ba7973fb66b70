package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// phonePattern accepts exactly ten digits.
var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// IsPhone reports whether s is a well formed phone number.
func IsPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// New returns a validator with the clinic rules registered.
func New() *validator.Validate {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

// Register installs the custom rules and json field naming on v.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
}

var bindingValidator = newBindingValidator()

func newBindingValidator() *validator.Validate {
	v := New()
	v.SetTagName("binding")
	return v
}

// Struct checks s against its binding tags, the rules gin applies to request
// bodies. Services use it for input that did not come through a handler.
func Struct(s interface{}) error {
	return bindingValidator.Struct(s)
}

// FieldError is a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Fields flattens validator errors. It returns nil for any other error.
func Fields(err error) []FieldError {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FieldError{Field: fieldPath(e), Message: message(e)})
	}
	return out
}

// Describe renders err as a single human readable reason.
func Describe(err error) string {
	fields := Fields(err)
	if len(fields) == 0 {
		return "malformed request body"
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "phone":
		return "must be exactly 10 digits"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "numeric":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
