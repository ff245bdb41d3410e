package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/model"
)

const (
	testPassword = "tartine-beurre-42"
	newPassword  = "confiture-fraise-7"
	siteURL      = "http://localhost:8000"
)

var resetLink = regexp.MustCompile(`/auth/reset_password_confirm/([0-9a-f-]+)/`)

func register(t *testing.T, env *testEnv, email string) *model.User {
	t.Helper()
	u, err := env.accounts.Register(context.Background(), "Margaux", email, testPassword, testPassword)
	require.NoError(t, err)
	return u
}

// =========================================================================
// Register
// =========================================================================

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.accounts.Register(context.Background(), "  Margaux ", " Margaux@EXAMPLE.com ", testPassword, testPassword)
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Margaux", u.FirstName)
	assert.Equal(t, "Margaux@example.com", u.Email, "domain is lowercased, local part kept")
	assert.True(t, u.IsActive)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, testPassword, u.PasswordHash)
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		first     string
		email     string
		pw1, pw2  string
		wantField string
		wantMsg   string
	}{
		{"missing first name", "", "a@example.com", testPassword, testPassword, "first_name", "Ce champ est obligatoire."},
		{"first name too long", "Marie-Charlotte-Amandine-Louise-Eugénie", "a@example.com", testPassword, testPassword, "first_name", "au plus 30 caractères"},
		{"missing email", "Margaux", " ", testPassword, testPassword, "email", "Ce champ est obligatoire."},
		{"invalid email", "Margaux", "margaux.example.com", testPassword, testPassword, "email", "adresse e-mail valide"},
		{"named address", "Margaux", "Margaux <a@example.com>", testPassword, testPassword, "email", "adresse e-mail valide"},
		{"passwords differ", "Margaux", "a@example.com", testPassword, testPassword + "!", "password2", "Les deux mots de passe ne correspondent pas"},
		{"too short", "Margaux", "a@example.com", "Xy7!", "Xy7!", "password2", "trop court"},
		{"numeric", "Margaux", "a@example.com", "73920461", "73920461", "password2", "entièrement numérique"},
		{"common", "Margaux", "a@example.com", "motdepasse", "motdepasse", "password2", "trop courant"},
		{"like first name", "Margaux", "a@example.com", "margaux1", "margaux1", "password2", "« Prénom »"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.accounts.Register(context.Background(), tt.first, tt.email, tt.pw1, tt.pw2)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, apperror.FieldOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "margaux@example.com")

	_, err := env.accounts.Register(context.Background(), "Autre", "margaux@EXAMPLE.COM", testPassword, testPassword)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "email", apperror.FieldOf(err))
	assert.Equal(t, "Un compte est déjà créé avec cet email.", err.Error())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "Jean@example.com", NormalizeEmail("  Jean@Example.COM "))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
	assert.Equal(t, "", NormalizeEmail("  "))
}

// =========================================================================
// Authenticate and sessions
// =========================================================================

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	registered := register(t, env, "margaux@example.com")

	u, err := env.accounts.Authenticate(context.Background(), "margaux@Example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "margaux@example.com")

	for _, tc := range []struct{ email, password string }{
		{"margaux@example.com", "wrong-password"},
		{"nobody@example.com", testPassword},
		{"", testPassword},
		{"margaux@example.com", ""},
	} {
		_, err := env.accounts.Authenticate(context.Background(), tc.email, tc.password)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrValidation)
		assert.Equal(t, "Merci de saisir un email et un mot de passe valides SVP.", err.Error())
	}
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hash, err := auth.NewPasswordServiceForTest(4).Hash(testPassword)
	require.NoError(t, err)
	require.NoError(t, env.db.Create(ctx, &model.User{
		Email:        "dormant@example.com",
		FirstName:    "Dormant",
		PasswordHash: hash,
		IsActive:     false,
	}))

	_, err = env.accounts.Authenticate(ctx, "dormant@example.com", testPassword)
	require.Error(t, err)
	assert.Equal(t, "This account is inactive.", err.Error())
}

func TestIssueSession(t *testing.T) {
	env := newTestEnv(t)
	u := register(t, env, "margaux@example.com")

	token, err := env.accounts.IssueSession(u)
	require.NoError(t, err)

	userID, err := env.tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
	assert.Equal(t, auth.DefaultSessionDuration, env.accounts.SessionTTL())
}

func TestGet(t *testing.T) {
	env := newTestEnv(t)
	u := register(t, env, "margaux@example.com")

	got, err := env.accounts.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = env.accounts.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.accounts.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// New password rules
// =========================================================================

func TestCheckNewPassword(t *testing.T) {
	attrs := userAttributes("margaux.dupont@example.com", "Margaux")

	tests := []struct {
		name    string
		pw1     string
		pw2     string
		wantMsg string // "" means accepted
	}{
		{"accepted", testPassword, testPassword, ""},
		{"accented, 72 bytes", strings.Repeat("é", 36), strings.Repeat("é", 36), ""},
		{"empty", "", "", msgRequired},
		{"confirmation differs", testPassword, newPassword, msgPasswordMismatch},
		{"73 bytes", strings.Repeat("a", 73), strings.Repeat("a", 73), "au maximum 72 octets"},
		{"37 accented letters", strings.Repeat("é", 37), strings.Repeat("é", 37), msgPasswordTooLong},
		{"too short", "tarte", "tarte", "trop court"},
		{"numeric", "0123456789", "0123456789", "entièrement numérique"},
		{"like the first name", "margaux1", "margaux1", "trop semblable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkNewPassword("new_password2", tt.pw1, tt.pw2, attrs...)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, "new_password2", apperror.FieldOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// =========================================================================
// Password change and reset
// =========================================================================

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	err := env.accounts.ChangePassword(ctx, u.ID, "not-my-password", newPassword, newPassword)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "old_password", apperror.FieldOf(err))

	err = env.accounts.ChangePassword(ctx, u.ID, testPassword, newPassword, "other")
	assert.Equal(t, "new_password2", apperror.FieldOf(err))

	require.NoError(t, env.accounts.ChangePassword(ctx, u.ID, testPassword, newPassword, newPassword))

	_, err = env.accounts.Authenticate(ctx, u.Email, testPassword)
	assert.Error(t, err)
	_, err = env.accounts.Authenticate(ctx, u.Email, newPassword)
	assert.NoError(t, err)
}

func resetToken(t *testing.T, env *testEnv) string {
	t.Helper()
	msg, ok := env.outbox.Last()
	require.True(t, ok, "no email sent")
	m := resetLink.FindStringSubmatch(msg.Body)
	require.NotNil(t, m, "no reset link in %q", msg.Body)
	return m[1]
}

func TestRequestPasswordReset_SendsLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, "margaux@example.com", siteURL+"/"))

	msgs := env.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, u.Email, msgs[0].To)
	assert.Equal(t, "Password reset on localhost:8000", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, siteURL+"/auth/reset_password_confirm/")
	assert.Contains(t, msgs[0].Body, "votre identifiant est votre courriel : margaux@example.com")

	assert.NoError(t, env.accounts.CheckResetToken(ctx, resetToken(t, env)))
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.accounts.RequestPasswordReset(context.Background(), "nobody@example.com", siteURL))
	assert.Empty(t, env.outbox.Messages())
}

func TestRequestPasswordReset_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.accounts.RequestPasswordReset(context.Background(), "not-an-email", siteURL)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRequestPasswordReset_MailerFailure(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "margaux@example.com")
	env.outbox.FailWith(errors.New("smtp down"))

	err := env.accounts.RequestPasswordReset(context.Background(), "margaux@example.com", siteURL)
	assert.ErrorContains(t, err, "smtp down")
}

func TestResetPassword_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, u.Email, siteURL))
	token := resetToken(t, env)

	err := env.accounts.ResetPassword(ctx, token, "short", "short")
	assert.Equal(t, "new_password2", apperror.FieldOf(err))
	assert.NoError(t, env.accounts.CheckResetToken(ctx, token), "a rejected password does not consume the token")

	require.NoError(t, env.accounts.ResetPassword(ctx, token, newPassword, newPassword))

	_, err = env.accounts.Authenticate(ctx, u.Email, newPassword)
	assert.NoError(t, err)

	err = env.accounts.ResetPassword(ctx, token, newPassword+"x", newPassword+"x")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "token", apperror.FieldOf(err))
	assert.Error(t, env.accounts.CheckResetToken(ctx, token))
}

func TestResetPassword_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, u.Email, siteURL))
	token := resetToken(t, env)

	env.accounts.now = func() time.Time { return time.Now().Add(DefaultResetTTL + time.Hour) }

	err := env.accounts.ResetPassword(ctx, token, newPassword, newPassword)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "n'était pas valide")
}

func TestResetPassword_VoidsOtherLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, u.Email, siteURL))
	first := resetToken(t, env)
	require.NoError(t, env.accounts.RequestPasswordReset(ctx, u.Email, siteURL))
	second := resetToken(t, env)
	require.NotEqual(t, first, second)

	require.NoError(t, env.accounts.ResetPassword(ctx, first, newPassword, newPassword))

	err := env.accounts.ResetPassword(ctx, second, "un-autre-mot-de-passe", "un-autre-mot-de-passe")
	assert.Equal(t, "token", apperror.FieldOf(err))
	_, err = env.accounts.Authenticate(ctx, u.Email, newPassword)
	assert.NoError(t, err, "the voided link must not have changed the password")
}

func TestChangePassword_VoidsResetLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := register(t, env, "margaux@example.com")

	require.NoError(t, env.accounts.RequestPasswordReset(ctx, u.Email, siteURL))
	token := resetToken(t, env)
	require.NoError(t, env.accounts.CheckResetToken(ctx, token))

	require.NoError(t, env.accounts.ChangePassword(ctx, u.ID, testPassword, newPassword, newPassword))

	assert.Error(t, env.accounts.CheckResetToken(ctx, token))
	err := env.accounts.ResetPassword(ctx, token, "un-autre-mot-de-passe", "un-autre-mot-de-passe")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	err := env.accounts.ResetPassword(context.Background(), "no-such-token", newPassword, newPassword)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// GitHub sign-in
// =========================================================================

func TestLoginGitHub_CreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 42, Login: "mrenard", Name: "Margaux Renard", Email: "margaux@example.com"}

	u, err := env.accounts.LoginGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "Margaux", u.FirstName)
	assert.Equal(t, "margaux@example.com", u.Email)
	require.NotNil(t, u.GitHubID)
	assert.Equal(t, int64(42), *u.GitHubID)

	again, err := env.accounts.LoginGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	_, err = env.accounts.Authenticate(ctx, u.Email, "")
	assert.Error(t, err, "GitHub-only accounts have no password")
}

func TestLoginGitHub_LinksExistingEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	existing := register(t, env, "margaux@example.com")

	u, err := env.accounts.LoginGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "mrenard", Email: "margaux@EXAMPLE.com"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, u.ID)

	byGitHub, err := env.db.GetByGitHubID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, byGitHub.ID)

	// the password still works after linking
	_, err = env.accounts.Authenticate(ctx, existing.Email, testPassword)
	assert.NoError(t, err)
}

func TestLoginGitHub_NoEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.accounts.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "ghost"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.accounts.LoginGitHub(context.Background(), nil)
	assert.Error(t, err)
}

// =========================================================================
// CreateSuperuser
// =========================================================================

func TestCreateSuperuser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.accounts.CreateSuperuser(ctx, "admin@purbeurre.example", testPassword, "")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "superuser", u.FirstName)

	_, err = env.accounts.Authenticate(ctx, "admin@purbeurre.example", testPassword)
	assert.NoError(t, err)

	_, err = env.accounts.CreateSuperuser(ctx, "admin@purbeurre.example", testPassword, "Root")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = env.accounts.CreateSuperuser(ctx, "other@purbeurre.example", "1234", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
