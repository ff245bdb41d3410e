package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	purmail "github.com/sakif/pur-beurre/internal/mail"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/repository"
)

const (
	MaxFirstNameLength   = 30
	MaxEmailLength       = 255
	DefaultResetTTL      = 3 * 24 * time.Hour
	DefaultSuperuserName = "superuser"
)

// User-facing messages. The site is in French; a few messages keep the
// wording users of the previous version already knew.
const (
	msgRequired         = "Ce champ est obligatoire."
	msgInvalidEmail     = "Saisissez une adresse e-mail valide."
	msgPasswordMismatch = "Les deux mots de passe ne correspondent pas"
	msgEmailTaken       = "Un compte est déjà créé avec cet email."
	msgInvalidLogin     = "Merci de saisir un email et un mot de passe valides SVP."
	msgInactive         = "This account is inactive."
	msgWrongOldPassword = "Votre ancien mot de passe est incorrect. Veuillez le rectifier."
	msgPasswordTooLong  = "Ce mot de passe est trop long. Il doit contenir au maximum 72 octets."
	msgInvalidResetLink = "Le lien de réinitialisation du mot de passe n'était pas valide, peut-être parce qu'il a déjà été utilisé."
	msgNoGitHubEmail    = "Votre compte GitHub ne fournit aucune adresse email vérifiée."
)

// AccountService handles accounts and sessions: sign-up, sign-in, password
// change and reset, GitHub sign-in.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository  → read/write user records
//   - resets     repository.ResetRepository → single-use reset tokens
//   - tokens     *auth.TokenService         → session JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - mailer     mail.Mailer                → reset emails
type AccountService struct {
	users     repository.UserRepository
	resets    repository.ResetRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    purmail.Mailer
	logger    *slog.Logger
	resetTTL  time.Duration
	now       func() time.Time
}

// NewAccountService wires an AccountService. resetTTL ≤ 0 means DefaultResetTTL.
func NewAccountService(
	users repository.UserRepository,
	resets repository.ResetRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer purmail.Mailer,
	logger *slog.Logger,
	resetTTL time.Duration,
) *AccountService {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &AccountService{
		users:     users,
		resets:    resets,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
		resetTTL:  resetTTL,
		now:       time.Now,
	}
}

// NormalizeEmail trims the address and lowercases its domain part. The local
// part is kept as typed: "Jean@Example.COM" → "Jean@example.com".
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// validEmail accepts a bare address ("a@b.c"), not "Name <a@b.c>".
func validEmail(email string) bool {
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

// checkNewPassword applies the confirmation and strength rules to a new
// password. field names the form field errors are reported on.
func checkNewPassword(field, pw1, pw2 string, attrs ...auth.UserAttribute) error {
	if pw1 == "" {
		return apperror.ValidationFailed(field, msgRequired)
	}
	if pw1 != pw2 {
		return apperror.ValidationFailed(field, msgPasswordMismatch)
	}
	if len(pw1) > 72 {
		return apperror.ValidationFailed(field, msgPasswordTooLong)
	}
	if err := auth.ValidatePassword(pw1, attrs...); err != nil {
		return apperror.ValidationFailed(field, err.Error())
	}
	return nil
}

func userAttributes(email, firstName string) []auth.UserAttribute {
	return []auth.UserAttribute{
		{Label: "Courriel", Value: email},
		{Label: "Prénom", Value: firstName},
	}
}

// Register creates an active account.
//
// Validation errors carry the form field they belong to (first_name, email,
// password2); a taken email is apperror.ErrConflict on "email".
func (s *AccountService) Register(ctx context.Context, firstName, email, password1, password2 string) (*model.User, error) {
	firstName = strings.TrimSpace(firstName)
	email = NormalizeEmail(email)

	if firstName == "" {
		return nil, apperror.ValidationFailed("first_name", msgRequired)
	}
	if n := utf8.RuneCountInString(firstName); n > MaxFirstNameLength {
		return nil, apperror.ValidationFailed("first_name", fmt.Sprintf(
			"Assurez-vous que cette valeur comporte au plus %d caractères (actuellement %d).",
			MaxFirstNameLength, n))
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", msgRequired)
	}
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", msgInvalidEmail)
	}
	if err := checkNewPassword("password2", password1, password2, userAttributes(email, firstName)...); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password1)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		FirstName:    firstName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMessage("email", msgEmailTaken)
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Authenticate checks an email and password.
//
// Unknown email and wrong password give the same error, and an unknown email
// still spends a bcrypt comparison, so the answer does not reveal which
// emails have an account.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", msgInvalidLogin)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Burn(password)
			return nil, apperror.ValidationFailed("", msgInvalidLogin)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.ValidationFailed("", msgInvalidLogin)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperror.ValidationFailed("", msgInactive)
	}
	return user, nil
}

// Get returns the user for the given internal ID.
func (s *AccountService) Get(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}
	return s.users.GetUserByID(ctx, userID)
}

// IssueSession returns a session token for user.
func (s *AccountService) IssueSession(user *model.User) (string, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}
	return token, nil
}

// SessionTTL is the lifetime of issued session tokens.
func (s *AccountService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID, oldPassword, new1, new2 string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.passwords.Verify(user.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.ValidationFailed("old_password", msgWrongOldPassword)
		}
		return err
	}
	if err := checkNewPassword("new_password2", new1, new2, userAttributes(user.Email, user.FirstName)...); err != nil {
		return err
	}

	return s.setPassword(ctx, user, new1)
}

func (s *AccountService) setPassword(ctx context.Context, user *model.User, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	// A new password voids every reset link sent before it.
	if err := s.resets.InvalidateResets(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidating password resets: %w", err)
	}
	s.logger.Info("password changed", slog.String("userID", user.ID))
	return nil
}

// RequestPasswordReset emails a single-use reset link to the account owning
// email. It succeeds silently when no active account matches, so the form
// cannot be used to discover registered emails.
//
// siteURL is the public base URL, e.g. "https://purbeurre.example"; its host
// appears in the subject.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email, siteURL string) error {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return apperror.ValidationFailed("email", msgInvalidEmail)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("password reset for unknown email")
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	if !user.IsActive {
		return nil
	}

	reset := &model.PasswordReset{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.resetTTL),
		CreatedAt: s.now(),
	}
	if err := s.resets.CreateReset(ctx, reset); err != nil {
		return fmt.Errorf("creating password reset: %w", err)
	}

	base := strings.TrimRight(siteURL, "/")
	host := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		host = u.Host
	}

	msg := purmail.Message{
		To:      user.Email,
		Subject: "Password reset on " + host,
		Body:    resetEmailBody(host, base+"/auth/reset_password_confirm/"+reset.Token+"/", user.Email),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send password reset email",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sending password reset email: %w", err)
	}

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

func resetEmailBody(host, link, email string) string {
	return "Bonjour,\n\n" +
		"Vous recevez ce courriel parce que vous avez demandé la réinitialisation du mot de passe de votre compte sur " + host + ".\n\n" +
		"Merci d'aller sur la page suivante pour choisir un nouveau mot de passe :\n" +
		link + "\n" +
		"Pour mémoire, votre identifiant est votre courriel : " + email + "\n\n" +
		"Merci d'utiliser notre site !\n\n" +
		"L'équipe Pur Beurre\n"
}

// CheckResetToken reports whether token can still be redeemed. The confirm
// page uses it to show the form or the "invalid link" message.
func (s *AccountService) CheckResetToken(ctx context.Context, token string) error {
	_, err := s.validReset(ctx, token)
	return err
}

func (s *AccountService) validReset(ctx context.Context, token string) (*model.PasswordReset, error) {
	reset, err := s.resets.GetReset(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("token", msgInvalidResetLink)
		}
		return nil, fmt.Errorf("looking up password reset: %w", err)
	}
	if !reset.Valid(s.now()) {
		return nil, apperror.ValidationFailed("token", msgInvalidResetLink)
	}
	return reset, nil
}

// ResetPassword sets a new password using an emailed token. The token is
// consumed before the password changes, so it works at most once; the other
// links of the user are voided with it.
func (s *AccountService) ResetPassword(ctx context.Context, token, new1, new2 string) error {
	reset, err := s.validReset(ctx, token)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByID(ctx, reset.UserID)
	if err != nil {
		return fmt.Errorf("loading user of password reset: %w", err)
	}
	if err := checkNewPassword("new_password2", new1, new2, userAttributes(user.Email, user.FirstName)...); err != nil {
		return err
	}

	if err := s.resets.MarkResetUsed(ctx, token); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("token", msgInvalidResetLink)
		}
		return fmt.Errorf("consuming password reset: %w", err)
	}
	return s.setPassword(ctx, user, new1)
}

// LoginGitHub finds or creates the account of a GitHub user:
//
//  1. an account already linked to this GitHub ID
//  2. else an account with the same email, which gets linked
//  3. else a new account without password
func (s *AccountService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	if gh == nil {
		return nil, fmt.Errorf("GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		return s.checkActive(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("looking up GitHub user %d: %w", gh.ID, err)
	}

	email := NormalizeEmail(gh.Email)
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", msgNoGitHubEmail)
	}

	user, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkGitHub(ctx, user.ID, gh.ID); err != nil {
			return nil, fmt.Errorf("linking GitHub account %d: %w", gh.ID, err)
		}
		id := gh.ID
		user.GitHubID = &id
		s.logger.Info("GitHub account linked",
			slog.String("userID", user.ID),
			slog.String("login", gh.Login),
		)
		return s.checkActive(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	firstName := gh.FirstName()
	if utf8.RuneCountInString(firstName) > MaxFirstNameLength {
		firstName = string([]rune(firstName)[:MaxFirstNameLength])
	}
	id := gh.ID
	user = &model.User{
		Email:     email,
		FirstName: firstName,
		IsActive:  true,
		GitHubID:  &id,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user for GitHub account %d: %w", gh.ID, err)
	}
	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return user, nil
}

func (s *AccountService) checkActive(user *model.User) (*model.User, error) {
	if !user.IsActive {
		return nil, apperror.ValidationFailed("", msgInactive)
	}
	return user, nil
}

// CreateSuperuser creates an administrator account. firstName defaults to
// DefaultSuperuserName.
func (s *AccountService) CreateSuperuser(ctx context.Context, email, password, firstName string) (*model.User, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", msgInvalidEmail)
	}
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = DefaultSuperuserName
	}
	if err := checkNewPassword("password", password, password, userAttributes(email, firstName)...); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &model.User{
		Email:        email,
		FirstName:    firstName,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ConflictMessage("email", msgEmailTaken)
		}
		return nil, fmt.Errorf("creating superuser: %w", err)
	}

	s.logger.Info("superuser created", slog.String("userID", user.ID))
	return user, nil
}
