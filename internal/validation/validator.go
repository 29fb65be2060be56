// Package validation checks and cleans user-supplied input.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"doubtdesk/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "subject", func(fl validator.FieldLevel) bool {
		return models.IsValidSubject(fl.Field().String())
	})
	mustRegister(v, "academic_year", func(fl validator.FieldLevel) bool {
		return models.IsValidYear(fl.Field().String())
	})
	mustRegister(v, "branch", func(fl validator.FieldLevel) bool {
		return models.IsValidBranch(fl.Field().String())
	})
	mustRegister(v, "role", func(fl validator.FieldLevel) bool {
		r := fl.Field().String()
		return r == models.RoleStudent || r == models.RoleAdmin
	})
	v.RegisterAlias("rating", "min=1,max=5")
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// Struct validates s and returns a VALIDATION_ERROR AppError describing every
// failing field, or nil.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	details := ToDetails(err)
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+details[field])
	}
	return &models.AppError{
		Code:    models.CodeValidation,
		Message: "Validation failed: " + strings.Join(parts, "; "),
		Err:     err,
	}
}

// ToDetails converts validation/binding errors into a map[field]message
// suitable for API error details.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	return map[string]string{"payload": "invalid payload"}
}

func formatFieldError(fe validator.FieldError) string {
	param := fe.Param()

	switch fe.Tag() {
	case "required", "notblank", "required_without_all":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		if isNumberKind(fe.Kind()) {
			return "must be at least " + param
		}
		return "must be at least " + param + " characters long"
	case "max":
		if isNumberKind(fe.Kind()) {
			return "must be at most " + param
		}
		return "must be at most " + param + " characters long"
	case "rating":
		return fmt.Sprintf("must be between %d and %d", models.MinRating, models.MaxRating)
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "subject":
		return "must be one of: " + strings.Join(models.Subjects(), ", ")
	case "academic_year":
		return "must be one of: " + strings.Join(models.Years(), ", ")
	case "branch":
		return "must be one of: " + strings.Join(models.Branches(), ", ")
	case "role":
		return "must be student or admin"
	default:
		if param != "" {
			return fmt.Sprintf("validation failed for '%s' with parameter '%s'", fe.Tag(), param)
		}
		return fmt.Sprintf("validation failed for '%s'", fe.Tag())
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
