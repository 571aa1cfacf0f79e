// Package validate adapts go-playground/validator to echo and registers the
// dental field rules used by request bodies.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("fdi", validateFDI)
	return &Validator{v: v}
}

// Validate returns nil or a single error naming every failing field.
func (val *Validator) Validate(i interface{}) error {
	err := val.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "fdi":
		return fmt.Sprintf("%s %q is not an FDI tooth number", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func validateFDI(fl validator.FieldLevel) bool {
	return IsFDI(fl.Field().String())
}

// IsFDI reports whether s is a two-digit FDI tooth number: quadrants 1-4
// hold permanent teeth 1-8, quadrants 5-8 hold primary teeth 1-5.
func IsFDI(s string) bool {
	if len(s) != 2 {
		return false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	quadrant, tooth := n/10, n%10
	switch {
	case quadrant >= 1 && quadrant <= 4:
		return tooth >= 1 && tooth <= 8
	case quadrant >= 5 && quadrant <= 8:
		return tooth >= 1 && tooth <= 5
	}
	return false
}
