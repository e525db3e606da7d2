package auth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MinPasswordLength is the shortest password the sign-in form accepts.
const MinPasswordLength = 6

// Credentials is the sign-in form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Validate checks the form. Guest sign-in sends a magic link and needs no
// password, but a password that is present must still be long enough.
func (c Credentials) Validate(guest bool) error {
	passwordRules := []validation.Rule{validation.Length(MinPasswordLength, 0)}
	if !guest {
		passwordRules = append([]validation.Rule{validation.Required}, passwordRules...)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, passwordRules...),
	)
}
