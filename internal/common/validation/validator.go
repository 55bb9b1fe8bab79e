// Package validation checks tagged structs with go-playground/validator and
// reports failures as configuration errors named after their YAML keys.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"oauth2-client/internal/common/errors"
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Validator wraps a configured validator.Validate. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that names fields by their yaml tag and knows
// the absolute_url rule.
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("absolute_url", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a config error listing every failed field.
func (v *Validator) Struct(s interface{}) error {
	fieldErrors := v.FieldErrors(s)
	if len(fieldErrors) == 0 {
		return nil
	}

	messages := make([]string, len(fieldErrors))
	for i, fe := range fieldErrors {
		messages[i] = fe.Message
	}
	return errors.ConfigError(strings.Join(messages, "; "))
}

// FieldErrors returns the failed rules of s, or nil.
func (v *Validator) FieldErrors(s interface{}) []FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	result := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		result = append(result, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: formatFieldError(fe),
		})
	}
	return result
}

func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "url", "absolute_url":
		return fmt.Sprintf("field '%s' must be an absolute URL", err.Field())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", err.Field(), err.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}
