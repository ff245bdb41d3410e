package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/pur-beurre/internal/model"
)

// AddFavorite bookmarks a product for a user. Saving twice is a no-op.
func (db *DB) AddFavorite(ctx context.Context, userID string, productID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_favorites (user_id, product_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		userID, productID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving favorite %d for user %s: %w", productID, userID, err)
	}
	return nil
}

// RemoveFavorite deletes the bookmark. Removing a missing favorite is a no-op;
// only this user's row is touched.
func (db *DB) RemoveFavorite(ctx context.Context, userID string, productID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE user_id = ? AND product_id = ?`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing favorite %d for user %s: %w", productID, userID, err)
	}
	return nil
}

// ListFavorites returns the user's saved products, healthiest first.
func (db *DB) ListFavorites(ctx context.Context, userID string) ([]model.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 JOIN user_favorites f ON f.product_id = p.id
		 WHERE f.user_id = ?
		 ORDER BY p.nutriscore_score ASC, p.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorites of user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectProducts(rows, 0)
}

// FavoriteIDs returns the IDs of the user's saved products.
func (db *DB) FavoriteIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT product_id FROM user_favorites WHERE user_id = ? ORDER BY product_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorite ids of user %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning favorite id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating favorite ids: %w", err)
	}
	return ids, nil
}
