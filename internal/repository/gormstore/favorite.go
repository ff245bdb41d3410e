package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/sakif/pur-beurre/internal/model"
)

func (s *Store) AddFavorite(ctx context.Context, userID string, productID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&favoriteRow{UserID: userID, ProductID: productID, CreatedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("gormstore: saving favorite %d for user %s: %w", productID, userID, err)
	}
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID string, productID int64) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&favoriteRow{}).Error
	if err != nil {
		return fmt.Errorf("gormstore: removing favorite %d for user %s: %w", productID, userID, err)
	}
	return nil
}

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]model.Product, error) {
	var rows []productRow
	err := s.db.WithContext(ctx).
		Joins("JOIN user_favorites f ON f.product_id = products.id").
		Where("f.user_id = ?", userID).
		Order("products.nutriscore_score ASC, products.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing favorites of user %s: %w", userID, err)
	}
	return toProducts(rows), nil
}

func (s *Store) FavoriteIDs(ctx context.Context, userID string) ([]int64, error) {
	ids := []int64{}
	err := s.db.WithContext(ctx).
		Model(&favoriteRow{}).
		Where("user_id = ?", userID).
		Order("product_id").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing favorite ids of user %s: %w", userID, err)
	}
	return ids, nil
}
