package account

import "github.com/go-playground/validator/v10"

// accountIDLength is the exact length of an account identifier.
const accountIDLength = 24

// validate is the shared validator instance. validator.Validate is safe for
// concurrent use after construction.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "account_id": exactly 24 hex characters, case-insensitive, no 0x
	// prefix. The stock "hexadecimal" rule tolerates a 0x/0X prefix, which
	// the backend identifier format does not.
	_ = v.RegisterValidation("account_id", func(fl validator.FieldLevel) bool {
		return isAccountID(fl.Field().String())
	})
	return v
}

func isAccountID(s string) bool {
	if len(s) != accountIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidID reports whether s is a syntactically valid account identifier:
// exactly 24 hexadecimal characters, case-insensitive. This is a pure
// syntactic check and never consults the backend.
func ValidID(s string) bool {
	return validate.Var(s, "required,account_id") == nil
}
