package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/handler"
	"github.com/sakif/pur-beurre/internal/mail"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/repository/sqlite"
	"github.com/sakif/pur-beurre/internal/service"
	"github.com/sakif/pur-beurre/web"
)

const (
	testPassword = "tartine-beurre-42"
	siteURL      = "http://purbeurre.test"
)

// =========================================================================
// TEST SETUP
// =========================================================================
//
// Handlers are called directly with httptest. They run on real services
// backed by an in-memory SQLite database, so a test exercises the whole
// request path below the router. URL parameters and the signed-in user are
// put in the request context the way chi and auth.RequireAuth would.

type testApp struct {
	db        *sqlite.DB
	outbox    *mail.Outbox
	tokens    *auth.TokenService
	products  *service.ProductService
	favorites *service.FavoriteService
	accounts  *service.AccountService

	pages    *handler.PageHandler
	ajax     *handler.AjaxHandler
	account  *handler.AccountHandler
	renderer *handler.Renderer
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := testLogger()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0)
	require.NoError(t, err)

	renderer, err := handler.NewRenderer(web.FS, logger)
	require.NoError(t, err)

	outbox := &mail.Outbox{}
	products := service.NewProductService(db, logger)
	favorites := service.NewFavoriteService(db, db, logger)
	accounts := service.NewAccountService(db, db, tokens, auth.NewPasswordServiceForTest(4), outbox, logger, 0)

	return &testApp{
		db:        db,
		outbox:    outbox,
		tokens:    tokens,
		products:  products,
		favorites: favorites,
		accounts:  accounts,
		pages:     handler.NewPageHandler(products, favorites, renderer, service.DefaultSubstitutes, logger),
		ajax:      handler.NewAjaxHandler(products, favorites, logger),
		account:   handler.NewAccountHandler(accounts, nil, renderer, siteURL, false, logger),
		renderer:  renderer,
	}
}

// addProduct stores a product linked to the given categories.
func (a *testApp) addProduct(t *testing.T, code, name string, score int, categories ...string) *model.Product {
	t.Helper()
	ctx := context.Background()

	p := &model.Product{
		Code:            code,
		Name:            name,
		NutriscoreGrade: "b",
		NutriscoreScore: score,
		Fat:             "9.5g",
		SaturatedFat:    model.UnknownNutrient,
		Sugars:          model.UnknownNutrient,
		Salt:            model.UnknownNutrient,
	}
	id, _, err := a.db.GetOrCreate(ctx, p)
	require.NoError(t, err)
	for _, c := range categories {
		catID, err := a.db.GetOrCreateCategory(ctx, c)
		require.NoError(t, err)
		require.NoError(t, a.db.AddCategory(ctx, id, catID))
	}
	return p
}

func (a *testApp) register(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := a.accounts.Register(context.Background(), "Colette", email, testPassword, testPassword)
	require.NoError(t, err)
	return u
}

// withParam sets a chi URL parameter on r.
func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// signedIn marks r as coming from userID.
func signedIn(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithUserID(r.Context(), userID))
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, r)
	return rr
}

// sessionCookie returns the session cookie set by a response, if any.
func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}
