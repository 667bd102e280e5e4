package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	svcerrors "github.com/elghella/marketplace/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("phone", isPhone); err != nil {
		panic(err)
	}
	return v
}

// isPhone accepts 8 to 15 digits separated by spaces or dashes, with an
// optional plus.
func isPhone(fl validator.FieldLevel) bool {
	digits := 0
	for _, r := range fl.Field().String() {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 15
}

// check runs a validator tag against value and reports msg on field.
func check(field string, value any, tag, msg string) error {
	if err := validate.Var(value, tag); err != nil {
		return svcerrors.Validation(field, msg)
	}
	return nil
}

// oneOf accepts an empty value or one of allowed.
func oneOf(field, value string, allowed ...string) error {
	if err := validate.Var(value, "omitempty,oneof="+strings.Join(allowed, " ")); err != nil {
		return svcerrors.Validation(field, field+" must be one of "+strings.Join(allowed, ", ")).
			WithDetails("allowed", allowed)
	}
	return nil
}

func validPhone(field, phone string) error {
	return check(field, phone, "omitempty,phone", field+" must have 8 to 15 digits")
}

func validEmail(field, email string) error {
	return check(field, email, "omitempty,email", field+" is invalid")
}

func maxRunes(field, s string, n int) error {
	return check(field, s, fmt.Sprintf("max=%d", n), field+" is too long")
}
