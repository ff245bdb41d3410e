package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/repository"
)

// FavoriteService manages the products a user saved.
type FavoriteService struct {
	favorites repository.FavoriteRepository
	products  repository.ProductRepository
	logger    *slog.Logger
}

func NewFavoriteService(
	favorites repository.FavoriteRepository,
	products repository.ProductRepository,
	logger *slog.Logger,
) *FavoriteService {
	return &FavoriteService{favorites: favorites, products: products, logger: logger}
}

// Save bookmarks a product. Saving it again is a no-op.
// Returns apperror.ErrNotFound for an unknown product.
func (s *FavoriteService) Save(ctx context.Context, userID string, productID int64) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	if err := s.favorites.AddFavorite(ctx, userID, productID); err != nil {
		return fmt.Errorf("saving favorite: %w", err)
	}
	s.logger.Info("favorite saved",
		slog.String("userID", userID),
		slog.Int64("productID", productID),
	)
	return nil
}

// Unsave removes a bookmark. Removing one that does not exist is a no-op,
// but the product itself must exist.
func (s *FavoriteService) Unsave(ctx context.Context, userID string, productID int64) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	if err := s.favorites.RemoveFavorite(ctx, userID, productID); err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	s.logger.Info("favorite removed",
		slog.String("userID", userID),
		slog.Int64("productID", productID),
	)
	return nil
}

// List returns the user's saved products, healthiest first.
func (s *FavoriteService) List(ctx context.Context, userID string) ([]model.Product, error) {
	products, err := s.favorites.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	return products, nil
}

// IDs returns the set of product ids the user saved. Result pages use it to
// show "save" or "unsave" on each product.
func (s *FavoriteService) IDs(ctx context.Context, userID string) (map[int64]bool, error) {
	ids, err := s.favorites.FavoriteIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing favorite ids: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
