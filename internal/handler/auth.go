package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/service"
)

const stateCookie = "oauth_state"

// AccountHandler serves the account pages: sign-up/sign-in, sign-out,
// account, password change and reset, and GitHub sign-in.
//
// DEPENDENCY CHAIN:
//   - accounts *service.AccountService → every account rule
//   - github   *auth.GitHubProvider    → OAuth code exchange (nil when disabled)
//   - render   *Renderer               → HTML pages
type AccountHandler struct {
	accounts      *service.AccountService
	github        *auth.GitHubProvider
	render        *Renderer
	siteURL       string
	secureCookies bool
	logger        *slog.Logger
}

// NewAccountHandler creates an AccountHandler. siteURL is the public base URL
// put in reset emails; when empty it is derived from each request.
func NewAccountHandler(
	accounts *service.AccountService,
	github *auth.GitHubProvider,
	render *Renderer,
	siteURL string,
	secureCookies bool,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		github:        github,
		render:        render,
		siteURL:       strings.TrimRight(siteURL, "/"),
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// formErrors records a validation or conflict error in data.Errors under its
// field (or fallback when it has none) and returns nil, so the form is shown
// again. Any other error is returned as is.
func formErrors(data *page, err error, fallback string) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) ||
		!(errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrConflict)) {
		return err
	}
	field := appErr.Field
	if field == "" {
		field = fallback
	}
	data.Errors[field] = appErr.Message
	return nil
}

// startSession issues a JWT for user and stores it in the session cookie.
// HttpOnly keeps it away from scripts; SameSite=Lax keeps it off cross-site
// POSTs.
func (h *AccountHandler) startSession(w http.ResponseWriter, user *model.User) error {
	token, err := h.accounts.IssueSession(user)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, token, h.accounts.SessionTTL(), h.secureCookies)
	return nil
}

// HandleSign serves the sign page, which holds both the sign-up and the
// sign-in form.
//
// HTTP: GET|POST /auth/sign/?next=/favorites/
//
// The submitted form is told apart by its hidden "action" field. On success
// the session cookie is set and the browser goes to next (a local path) or /.
func (h *AccountHandler) HandleSign(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "Connexion")
	data.GitHubEnabled = h.github != nil
	data.Next = r.URL.Query().Get("next")

	if r.Method != http.MethodPost {
		h.render.Render(w, http.StatusOK, "sign", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		data.Errors[""] = "Formulaire invalide."
		h.render.Render(w, http.StatusBadRequest, "sign", data)
		return
	}
	form := r.PostForm
	if next := form.Get("next"); next != "" {
		data.Next = next
	}

	var (
		user *model.User
		err  error
	)
	if form.Get("action") == "signup" {
		data.Form["first_name"] = form.Get("first_name")
		data.Form["signup_email"] = form.Get("email")
		user, err = h.accounts.Register(r.Context(),
			form.Get("first_name"), form.Get("email"), form.Get("password1"), form.Get("password2"))
		err = formErrors(data, err, "")
	} else {
		data.Form["signin_email"] = form.Get("email")
		user, err = h.accounts.Authenticate(r.Context(), form.Get("email"), form.Get("password"))
		err = formErrors(data, err, "signin")
	}

	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	if user == nil {
		h.render.Render(w, http.StatusOK, "sign", data)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.logger.Info("user signed in", slog.String("userID", user.ID))
	http.Redirect(w, r, safeNext(data.Next), http.StatusFound)
}

// HandleLogOut clears the session cookie and shows the goodbye page.
//
// HTTP: GET /auth/log_out/ (RequireAuth)
//
// Sessions are stateless JWTs: "logging out" deletes the cookie. The token
// itself stays valid until it expires, but the browser no longer sends it.
func (h *AccountHandler) HandleLogOut(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookies)
	data := newPage(r, "Déconnexion")
	data.UserAuthenticated = false
	h.render.Render(w, http.StatusOK, "log_out", data)
}

// HandleAccount shows the signed-in user's account.
//
// HTTP: GET /auth/account/ (RequireAuth)
func (h *AccountHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	data := newPage(r, "Mon compte")
	data.User = user
	h.render.Render(w, http.StatusOK, "account", data)
}

// currentUser loads the session's user. A token whose user no longer exists
// is treated as signed out.
func (h *AccountHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.accounts.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrValidation) {
			auth.ClearSessionCookie(w, h.secureCookies)
			http.Redirect(w, r, auth.SignURL(r.URL.RequestURI()), http.StatusFound)
			return nil, false
		}
		h.render.ServerError(w, r, err)
		return nil, false
	}
	return user, true
}

// HandleMe returns the signed-in user's profile as JSON.
//
// HTTP: GET /api/me (RequireAuthJSON)
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.accounts.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword serves and processes the password change form.
//
// HTTP: GET|POST /auth/change_password/ (RequireAuth)
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "Changer de mot de passe")
	if r.Method != http.MethodPost {
		h.render.Render(w, http.StatusOK, "change_password", data)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	err := h.accounts.ChangePassword(r.Context(), userID,
		r.PostFormValue("old_password"),
		r.PostFormValue("new_password1"),
		r.PostFormValue("new_password2"),
	)
	if err == nil {
		http.Redirect(w, r, "/auth/change_password/done/", http.StatusFound)
		return
	}
	if err := formErrors(data, err, "new_password2"); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.Render(w, http.StatusOK, "change_password", data)
}

// HandleChangePasswordDone confirms a password change.
//
// HTTP: GET /auth/change_password/done/ (RequireAuth)
func (h *AccountHandler) HandleChangePasswordDone(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, http.StatusOK, "password_changed", newPage(r, "Mot de passe modifié"))
}

// HandleResetPassword serves and processes the "forgot password" form.
//
// HTTP: GET|POST /auth/reset_password/
//
// The answer is the same whether or not the email has an account.
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "Mot de passe oublié")
	if r.Method != http.MethodPost {
		h.render.Render(w, http.StatusOK, "reset_form", data)
		return
	}

	email := r.PostFormValue("email")
	data.Form["email"] = email
	err := h.accounts.RequestPasswordReset(r.Context(), email, h.baseURL(r))
	if err == nil {
		http.Redirect(w, r, "/auth/reset_password/done/", http.StatusFound)
		return
	}
	if err := formErrors(data, err, "email"); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.render.Render(w, http.StatusOK, "reset_form", data)
}

// HandleResetPasswordDone tells the user to check their inbox.
//
// HTTP: GET /auth/reset_password/done/
func (h *AccountHandler) HandleResetPasswordDone(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, http.StatusOK, "reset_done", newPage(r, "Courriel envoyé"))
}

// HandleResetPasswordConfirm serves and processes the new password form
// reached from the emailed link.
//
// HTTP: GET|POST /auth/reset_password_confirm/{token}/
func (h *AccountHandler) HandleResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	data := newPage(r, "Nouveau mot de passe")
	data.Token = token

	var err error
	if r.Method != http.MethodPost {
		err = h.accounts.CheckResetToken(r.Context(), token)
	} else {
		err = h.accounts.ResetPassword(r.Context(), token,
			r.PostFormValue("new_password1"),
			r.PostFormValue("new_password2"),
		)
		if err == nil {
			h.logger.Info("password reset completed")
			http.Redirect(w, r, "/auth/reset_password_complete/", http.StatusFound)
			return
		}
	}

	if err := formErrors(data, err, "new_password2"); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	_, badToken := data.Errors["token"]
	data.ValidLink = !badToken
	h.render.Render(w, http.StatusOK, "reset_confirm", data)
}

// HandleResetPasswordComplete confirms the reset.
//
// HTTP: GET /auth/reset_password_complete/
func (h *AccountHandler) HandleResetPasswordComplete(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, http.StatusOK, "reset_complete", newPage(r, "Mot de passe réinitialisé"))
}

// baseURL is the configured site URL, or the scheme and host the request
// came in on.
func (h *AccountHandler) baseURL(r *http.Request) string {
	if h.siteURL != "" {
		return h.siteURL
	}
	scheme := "http"
	if r.TLS != nil || h.secureCookies {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie and sent to GitHub, which
// hands it back on the callback. A callback whose state does not match the
// cookie was not started by this browser and is rejected.
func (h *AccountHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		h.render.NotFound(w, r)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Find, link or create the account
//  4. Set the session cookie and redirect home
func (h *AccountHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		h.render.NotFound(w, r)
		return
	}

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// the state is single-use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, auth.SignPath, http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Find, link or create the account ---
	user, err := h.accounts.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		data := newPage(r, "Connexion")
		data.GitHubEnabled = true
		if err := formErrors(data, err, "signin"); err != nil {
			h.render.ServerError(w, r, err)
			return
		}
		if msg, ok := data.Errors["email"]; ok {
			delete(data.Errors, "email")
			data.Errors["signin"] = msg
		}
		h.render.Render(w, http.StatusOK, "sign", data)
		return
	}

	// --- Step 4: Issue the session ---
	if err := h.startSession(w, user); err != nil {
		h.render.ServerError(w, r, err)
		return
	}
	h.logger.Info("user signed in via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
