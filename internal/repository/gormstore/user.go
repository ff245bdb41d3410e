package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

func (s *Store) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	row := userRow{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		PasswordHash: user.PasswordHash,
		IsActive:     user.IsActive,
		IsAdmin:      user.IsAdmin,
		GitHubID:     user.GitHubID,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	// Select("*") writes zero values too: without it gorm would skip
	// IsActive=false and let the column default (true) win.
	err := s.db.WithContext(ctx).Select("*").Create(&row).Error
	if err != nil {
		if isDuplicate(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("gormstore: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, id, "id = ?", id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, email, "email = ?", email)
}

func (s *Store) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return s.findUser(ctx, fmt.Sprintf("github:%d", githubID), "github_id = ?", githubID)
}

func (s *Store) findUser(ctx context.Context, key, query string, arg any) (*model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("gormstore: getting user %s: %w", key, err)
	}
	return row.toModel(), nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, id, map[string]any{
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	})
}

func (s *Store) LinkGitHub(ctx context.Context, id string, githubID int64) error {
	err := s.updateUser(ctx, id, map[string]any{
		"github_id":  githubID,
		"updated_at": time.Now(),
	})
	if isDuplicate(err) {
		return apperror.Conflict("user", fmt.Sprintf("github:%d", githubID))
	}
	return err
}

func (s *Store) updateUser(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return res.Error
		}
		return fmt.Errorf("gormstore: updating user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
