package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

func (s *Store) CreateReset(ctx context.Context, reset *model.PasswordReset) error {
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now()
	}
	row := passwordResetRow{
		Token:     reset.Token,
		UserID:    reset.UserID,
		ExpiresAt: reset.ExpiresAt,
		CreatedAt: reset.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: creating password reset for user %s: %w", reset.UserID, err)
	}
	return nil
}

func (s *Store) GetReset(ctx context.Context, token string) (*model.PasswordReset, error) {
	var row passwordResetRow
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("password reset", token)
		}
		return nil, fmt.Errorf("gormstore: getting password reset: %w", err)
	}
	return row.toModel(), nil
}

// MarkResetUsed consumes a token; unknown or already used tokens return
// apperror.ErrNotFound.
func (s *Store) MarkResetUsed(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).
		Model(&passwordResetRow{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("gormstore: consuming password reset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("password reset", token)
	}
	return nil
}

func (s *Store) InvalidateResets(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Model(&passwordResetRow{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Update("used_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("gormstore: invalidating password resets of user %s: %w", userID, err)
	}
	return nil
}
