package handler

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/place-reservation/internal/datetime"
)

// Validator plugs go-playground/validator into echo.  Besides the builtin
// tags it knows "date": DD/MM/YYYY with an optional HH:mm:ss.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds the validator.  Field names in errors are the JSON
// names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := datetime.ParseAny(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error { return cv.v.Struct(i) }
