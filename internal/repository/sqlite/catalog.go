package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/pur-beurre/internal/model"
)

// GetOrCreateCategory returns the id of the named category, creating it if needed.
func (db *DB) GetOrCreateCategory(ctx context.Context, name string) (int64, error) {
	return db.getOrCreateName(ctx, "categories", name)
}

// GetOrCreateStore returns the id of the named store, creating it if needed.
func (db *DB) GetOrCreateStore(ctx context.Context, name string) (int64, error) {
	return db.getOrCreateName(ctx, "stores", name)
}

// getOrCreateName implements get-or-create for the two (id, name UNIQUE)
// tables. table is always a constant from this package, never user input.
func (db *DB) getOrCreateName(ctx context.Context, table, name string) (int64, error) {
	_, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, table),
		name,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: inserting into %s %q: %w", table, name, err)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, table),
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: looking up %s %q: %w", table, name, err)
	}
	return id, nil
}

// ListCategories returns all categories ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	return categories, nil
}
