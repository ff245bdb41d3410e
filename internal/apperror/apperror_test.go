package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Each constructor pairs one sentinel with the text shown to the user and,
// for form errors, the field the message is displayed under.
func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		sentinel  error
		wantMsg   string
		wantField string
	}{
		{"unknown product", NotFound("product", "3017620422003"), ErrNotFound, "product not found with id 3017620422003", ""},
		{"sign-up field", ValidationFailed("first_name", "Ce champ est obligatoire."), ErrValidation, "Ce champ est obligatoire.", "first_name"},
		{"duplicate row", Conflict("user", "colette@example.com"), ErrConflict, "user conflict with id colette@example.com", ""},
		{"email taken", ConflictMessage("email", "Un compte est déjà créé avec cet email."), ErrConflict, "Un compte est déjà créé avec cet email.", "email"},
		{"no session", Unauthorized("valid authentication required"), ErrUnauthorized, "valid authentication required", ""},
		{"not allowed", Forbidden("staff only"), ErrForbidden, "staff only", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, tt.wantField, tt.err.Field)

			for _, other := range []error{ErrNotFound, ErrValidation, ErrConflict, ErrUnauthorized, ErrForbidden} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, tt.err, other)
				}
			}
		})
	}
}

// Services wrap their errors with context; the sentinel and the field must
// survive the wrapping for handlers to map them.
func TestWrapped(t *testing.T) {
	err := fmt.Errorf("registering: %w", ConflictMessage("email", "Un compte est déjà créé avec cet email."))

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "email", FieldOf(err))
	assert.Equal(t, "registering: Un compte est déjà créé avec cet email.", err.Error())

	var appErr *AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Un compte est déjà créé avec cet email.", appErr.Message)
}

func TestFieldOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"password confirmation", ValidationFailed("password2", "Les deux mots de passe ne correspondent pas"), "password2"},
		{"reset link", fmt.Errorf("resetting: %w", ValidationFailed("token", "invalid")), "token"},
		{"unknown product", NotFound("product", "1"), ""},
		{"database failure", errors.New("sqlite: disk I/O error"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FieldOf(tt.err))
		})
	}
}
