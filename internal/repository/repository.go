// Package repository declares the storage interfaces used by the service layer.
//
// Two backends implement them:
//   - repository/sqlite    → database/sql + modernc.org/sqlite (default)
//   - repository/gormstore → gorm, PostgreSQL in production
//
// Services depend on these interfaces only, so the backend is chosen once in
// the composition root (internal/server, cmd/purbeurre).
package repository

import (
	"context"

	"github.com/sakif/pur-beurre/internal/model"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	GetByCode(ctx context.Context, code string) (*model.Product, error)
	// GetOrCreate inserts p unless a product with the same code exists.
	// It returns the stored id and whether a new row was created.
	GetOrCreate(ctx context.Context, p *model.Product) (int64, bool, error)
	AddCategory(ctx context.Context, productID, categoryID int64) error
	AddStore(ctx context.Context, productID, storeID int64) error
	Categories(ctx context.Context, productID int64) ([]model.Category, error)
	Stores(ctx context.Context, productID int64) ([]model.Store, error)
	// BestSubstitutes returns up to n products sharing at least one category
	// with productID (itself included), ordered by nutriscore score then id.
	BestSubstitutes(ctx context.Context, productID int64, n int) ([]model.Product, error)
	SearchLabels(ctx context.Context, term string, limit int) ([]string, error)
	ListLabels(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

type CatalogRepository interface {
	GetOrCreateCategory(ctx context.Context, name string) (int64, error)
	GetOrCreateStore(ctx context.Context, name string) (int64, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkGitHub(ctx context.Context, id string, githubID int64) error
}

type FavoriteRepository interface {
	AddFavorite(ctx context.Context, userID string, productID int64) error
	RemoveFavorite(ctx context.Context, userID string, productID int64) error
	ListFavorites(ctx context.Context, userID string) ([]model.Product, error)
	FavoriteIDs(ctx context.Context, userID string) ([]int64, error)
}

type ResetRepository interface {
	CreateReset(ctx context.Context, reset *model.PasswordReset) error
	GetReset(ctx context.Context, token string) (*model.PasswordReset, error)
	MarkResetUsed(ctx context.Context, token string) error
	// InvalidateResets consumes every unused token of the user.
	InvalidateResets(ctx context.Context, userID string) error
}

// Store bundles every repository; both backends satisfy it with one value.
type Store interface {
	ProductRepository
	CatalogRepository
	UserRepository
	FavoriteRepository
	ResetRepository
	Close() error
}
