// Package handler contains the HTTP request handlers of Pur Beurre.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (URL params, form or JSON body, cookies)
//  2. Call the service layer
//  3. Write the HTTP response: an HTML page, a redirect, or JSON for the
//     AJAX endpoints used by the search box and the save buttons
//
// Handlers hold no business rules; services return domain errors
// (internal/apperror) and handlers translate them to HTTP.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/service"
)

// pageNames lists every page template under templates/. Each one defines
// "content" and is rendered inside base.html.
var pageNames = []string{
	"index", "legal", "food", "results", "favorites",
	"sign", "log_out", "account", "change_password", "password_changed",
	"reset_form", "reset_done", "reset_confirm", "reset_complete",
	"404", "500",
}

// page is the data every template receives. One struct serves all pages so
// that templates never reference a field that does not exist.
type page struct {
	Title             string
	UserAuthenticated bool
	User              *model.User
	GitHubEnabled     bool

	// forms
	Next   string
	Form   map[string]string
	Errors map[string]string

	// products
	ProductCount int
	Product      *model.Product
	Detail       *service.ProductDetail
	Cards        []card

	// password reset
	Token     string
	ValidLink bool
}

// card is one product tile on the results and favorites pages.
type card struct {
	Product       model.Product
	Saved         bool
	Authenticated bool
	InitialID     int64
}

// newPage returns page data with the session state filled in. OptionalAuth
// (or RequireAuth) has already put the user ID in the context when the
// session cookie is valid.
func newPage(r *http.Request, title string) *page {
	_, ok := auth.UserIDFromContext(r.Context())
	return &page{
		Title:             title,
		UserAuthenticated: ok,
		Form:              map[string]string{},
		Errors:            map[string]string{},
	}
}

// Renderer executes the page templates.
//
// TEMPLATE COMPOSITION:
// Every page is parsed together with base.html (the layout, which calls
// {{template "content" .}}) and product_card.html. Each page gets its own
// template set, parsed once at startup, so the "content" blocks of
// different pages never collide.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses the templates found under templates/ in fsys.
func NewRenderer(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys,
			"templates/base.html",
			"templates/product_card.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages, logger: logger}, nil
}

// Render writes the named page with the given status.
//
// The page is rendered into a buffer first: a template error halfway through
// would otherwise leave a truncated page behind a 200 status.
func (rd *Renderer) Render(w http.ResponseWriter, status int, name string, data *page) {
	tmpl, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown template", slog.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// NotFound renders the 404 page.
func (rd *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.Render(w, http.StatusNotFound, "404", newPage(r, "Page introuvable"))
}

// ServerError logs err and renders the 500 page.
func (rd *Renderer) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	rd.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	rd.Render(w, http.StatusInternalServerError, "500", newPage(r, "Erreur"))
}
