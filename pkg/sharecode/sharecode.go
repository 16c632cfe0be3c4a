// Package sharecode holds the access-code rule shared by the API and its clients.
package sharecode

import (
	"github.com/go-playground/validator/v10"
)

// Length is the exact number of digits in an access code.
const Length = 4

// ValidationTag is the struct tag registered by Register.
const ValidationTag = "sharecode"

// Valid reports whether code is exactly four ASCII digits.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Register installs the sharecode tag on v. Empty values pass so the tag
// composes with required_if.
func Register(v *validator.Validate) error {
	return v.RegisterValidation(ValidationTag, func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		return code == "" || Valid(code)
	})
}
