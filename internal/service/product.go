// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives and return domain errors (internal/apperror),
// never HTTP types. The CLI (cmd/purbeurre) calls the same services as the
// handlers.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, NOT a *sqlite.DB. The composition
// root decides which backend (SQLite or gorm/PostgreSQL) stands behind them;
// tests pass an in-memory database or a hand-written fake.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/repository"
)

const (
	DefaultSubstitutes  = 6
	MaxSubstitutes      = 50
	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 50
)

// labelCode extracts the barcode from a product label, see model.Product.Label.
var labelCode = regexp.MustCompile(`\[code-barres : ([0-9]+?)\]`)

// ParseLabelCode returns the barcode carried by a search box value. The value
// is either a full label ("Nutella [code-barres : 3017620422003]") or a bare
// barcode typed by the user.
func ParseLabelCode(label string) (string, bool) {
	if m := labelCode.FindStringSubmatch(label); m != nil {
		return m[1], true
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return label, true
}

// ProductService answers the product questions of the site: what is this
// product, what are its healthier substitutes, which product is the user
// typing.
type ProductService struct {
	products repository.ProductRepository
	logger   *slog.Logger
}

func NewProductService(products repository.ProductRepository, logger *slog.Logger) *ProductService {
	return &ProductService{products: products, logger: logger}
}

// Get returns a product by id, or apperror.ErrNotFound.
func (s *ProductService) Get(ctx context.Context, id int64) (*model.Product, error) {
	return s.products.GetByID(ctx, id)
}

// ProductDetail is a product with its categories and stores, as shown on
// the product page.
type ProductDetail struct {
	Product    *model.Product
	Categories []model.Category
	Stores     []model.Store
}

// Detail returns the product page data.
func (s *ProductService) Detail(ctx context.Context, id int64) (*ProductDetail, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	categories, err := s.products.Categories(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading categories of product %d: %w", id, err)
	}
	stores, err := s.products.Stores(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading stores of product %d: %w", id, err)
	}
	return &ProductDetail{Product: p, Categories: categories, Stores: stores}, nil
}

// Substitutes returns the initial product and its n best substitutes.
//
// n ≤ 0 means DefaultSubstitutes; larger values are capped at
// MaxSubstitutes. The initial product is part of its own categories, so it
// appears in the list when nothing healthier exists.
func (s *ProductService) Substitutes(ctx context.Context, id int64, n int) (*model.Product, []model.Product, error) {
	if n <= 0 {
		n = DefaultSubstitutes
	}
	if n > MaxSubstitutes {
		n = MaxSubstitutes
	}

	initial, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	subs, err := s.products.BestSubstitutes(ctx, id, n)
	if err != nil {
		s.logger.Error("failed to find substitutes",
			slog.Int64("productID", id),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("finding substitutes: %w", err)
	}
	return initial, subs, nil
}

// FindByLabel resolves a search box value to a product.
// Returns apperror.ErrNotFound when no barcode can be read or no product has it.
func (s *ProductService) FindByLabel(ctx context.Context, label string) (*model.Product, error) {
	code, ok := ParseLabelCode(label)
	if !ok {
		return nil, apperror.NotFound("product", label)
	}
	return s.products.GetByCode(ctx, code)
}

// Suggest returns autocomplete labels for term. An empty term suggests nothing.
func (s *ProductService) Suggest(ctx context.Context, term string, limit int) ([]string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}

	labels, err := s.products.SearchLabels(ctx, term, limit)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return labels, nil
}

// Labels returns every product label, for pages that embed the full
// autocomplete list.
func (s *ProductService) Labels(ctx context.Context) ([]string, error) {
	labels, err := s.products.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing product labels: %w", err)
	}
	return labels, nil
}

// Count returns the number of products in the catalogue.
func (s *ProductService) Count(ctx context.Context) (int, error) {
	return s.products.Count(ctx)
}
