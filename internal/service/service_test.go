package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/mail"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/repository/sqlite"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================
//
// Services run against a real in-memory SQLite database: the repository
// queries (substitute ranking above all) are part of what the services
// promise, and ":memory:" keeps each test isolated and fast.

type testEnv struct {
	db        *sqlite.DB
	outbox    *mail.Outbox
	tokens    *auth.TokenService
	products  *ProductService
	favorites *FavoriteService
	accounts  *AccountService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	require.NoError(t, err)

	// Cost 4 is bcrypt minimum — makes tests fast
	passwords := auth.NewPasswordServiceForTest(4)
	outbox := &mail.Outbox{}
	logger := discardLogger()

	return &testEnv{
		db:        db,
		outbox:    outbox,
		tokens:    tokens,
		products:  NewProductService(db, logger),
		favorites: NewFavoriteService(db, db, logger),
		accounts:  NewAccountService(db, db, tokens, passwords, outbox, logger, 0),
	}
}

// addProduct stores a product linked to the given categories.
func (e *testEnv) addProduct(t *testing.T, code, name string, score int, categories ...string) *model.Product {
	t.Helper()
	ctx := context.Background()

	p := &model.Product{
		Code:            code,
		Name:            name,
		NutriscoreGrade: "c",
		NutriscoreScore: score,
		Fat:             model.UnknownNutrient,
		SaturatedFat:    model.UnknownNutrient,
		Sugars:          model.UnknownNutrient,
		Salt:            model.UnknownNutrient,
	}
	id, _, err := e.db.GetOrCreate(ctx, p)
	require.NoError(t, err)
	for _, c := range categories {
		catID, err := e.db.GetOrCreateCategory(ctx, c)
		require.NoError(t, err)
		require.NoError(t, e.db.AddCategory(ctx, id, catID))
	}
	return p
}
