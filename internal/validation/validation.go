// Package validation turns validator tag failures into VALIDATION app errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"medlink/m/internal/apperrors"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return instance
}

// Struct validates v and reports every failing field keyed by its JSON name.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Validation(err.Error())
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = message(fe)
	}
	return apperrors.ValidationFields("validation failed", fields)
}

// Pair rejects a coordinate pair where only one side is present.
func Pair(latField string, lat *float64, lonField string, lon *float64) error {
	if (lat == nil) == (lon == nil) {
		return nil
	}
	return apperrors.ValidationFields("validation failed", map[string]string{
		latField: fmt.Sprintf("%s and %s must be provided together", latField, lonField),
	})
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", field, fe.Param())
	case "latitude":
		return fmt.Sprintf("%s must be a latitude between -90 and 90", field)
	case "longitude":
		return fmt.Sprintf("%s must be a longitude between -180 and 180", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
