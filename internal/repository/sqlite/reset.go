package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

// CreateReset stores a password reset token.
func (db *DB) CreateReset(ctx context.Context, reset *model.PasswordReset) error {
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO password_resets (token, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		reset.Token, reset.UserID, reset.ExpiresAt, reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating password reset for user %s: %w", reset.UserID, err)
	}
	return nil
}

// GetReset retrieves a reset token. Expiry is checked by the caller.
func (db *DB) GetReset(ctx context.Context, token string) (*model.PasswordReset, error) {
	var (
		r      model.PasswordReset
		usedAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, used_at, created_at
		 FROM password_resets WHERE token = ?`,
		token,
	).Scan(&r.Token, &r.UserID, &r.ExpiresAt, &usedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("password reset", token)
		}
		return nil, fmt.Errorf("sqlite: getting password reset: %w", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		r.UsedAt = &t
	}
	return &r, nil
}

// MarkResetUsed consumes a token. A token that is unknown or already used
// returns apperror.ErrNotFound, which makes redemption single-use even when
// two requests race.
func (db *DB) MarkResetUsed(ctx context.Context, token string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		time.Now(), token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: consuming password reset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("password reset", token)
	}
	return nil
}

// InvalidateResets marks every outstanding token of the user as used. It runs
// whenever the password changes, so links emailed earlier stop working.
func (db *DB) InvalidateResets(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE user_id = ? AND used_at IS NULL`,
		time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: invalidating password resets of user %s: %w", userID, err)
	}
	return nil
}
