package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

const productColumns = `p.id, p.code, p.name, p.nutriscore_grade, p.nutriscore_score,
	p.fat, p.saturated_fat, p.sugars, p.salt, p.url, p.image_url`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (model.Product, error) {
	var p model.Product
	err := s.Scan(
		&p.ID, &p.Code, &p.Name, &p.NutriscoreGrade, &p.NutriscoreScore,
		&p.Fat, &p.SaturatedFat, &p.Sugars, &p.Salt, &p.URL, &p.ImageURL,
	)
	return p, err
}

// GetByID retrieves a single product by its ID.
// Returns apperror.ErrNotFound if no product has that ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByCode retrieves a product by its barcode.
func (db *DB) GetByCode(ctx context.Context, code string) (*model.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.code = ?`, code,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product", code)
		}
		return nil, fmt.Errorf("sqlite: getting product by code %s: %w", code, err)
	}
	return &p, nil
}

// GetOrCreate inserts the product unless its code is already stored.
//
// GET-OR-CREATE WITHOUT A RACE:
// "SELECT then INSERT" has a window where two importers both see no row and
// both insert. INSERT ... ON CONFLICT(code) DO NOTHING lets the UNIQUE index
// decide atomically; a follow-up SELECT then reads whichever row won. An
// existing product is returned as-is, never updated.
func (db *DB) GetOrCreate(ctx context.Context, p *model.Product) (int64, bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO products (code, name, nutriscore_grade, nutriscore_score,
			fat, saturated_fat, sugars, salt, url, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		p.Code, p.Name, p.NutriscoreGrade, p.NutriscoreScore,
		p.Fat, p.SaturatedFat, p.Sugars, p.Salt, p.URL, p.ImageURL,
	)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: inserting product %s: %w", p.Code, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("sqlite: reading product id: %w", err)
		}
		p.ID = id
		return id, true, nil
	}

	var id int64
	err = db.conn.QueryRowContext(ctx, `SELECT id FROM products WHERE code = ?`, p.Code).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: looking up product %s: %w", p.Code, err)
	}
	p.ID = id
	return id, false, nil
}

// AddCategory links a product to a category. Linking twice is a no-op.
func (db *DB) AddCategory(ctx context.Context, productID, categoryID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		productID, categoryID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking product %d to category %d: %w", productID, categoryID, err)
	}
	return nil
}

// AddStore links a product to a store. Linking twice is a no-op.
func (db *DB) AddStore(ctx context.Context, productID, storeID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO product_stores (product_id, store_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		productID, storeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking product %d to store %d: %w", productID, storeID, err)
	}
	return nil
}

// Categories lists the categories of a product, by name.
func (db *DB) Categories(ctx context.Context, productID int64) ([]model.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.name FROM categories c
		 JOIN product_categories pc ON pc.category_id = c.id
		 WHERE pc.product_id = ?
		 ORDER BY c.name`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories of product %d: %w", productID, err)
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

// Stores lists the stores selling a product, by name.
func (db *DB) Stores(ctx context.Context, productID int64) ([]model.Store, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.name FROM stores s
		 JOIN product_stores ps ON ps.store_id = s.id
		 WHERE ps.product_id = ?
		 ORDER BY s.name`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing stores of product %d: %w", productID, err)
	}
	defer rows.Close()

	stores := []model.Store{}
	for rows.Next() {
		var s model.Store
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning store row: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating stores: %w", err)
	}
	return stores, nil
}

// BestSubstitutes returns the n healthiest products sharing a category with productID.
//
// THE QUERY:
// The sub-select walks product_categories twice: first to the categories of
// the initial product, then back to every product in those categories.
// DISTINCT removes products reached through several shared categories. The
// initial product is part of its own categories, so it is returned too when it
// is among the best. Ties on the score are broken by id to keep pages stable.
func (db *DB) BestSubstitutes(ctx context.Context, productID int64, n int) ([]model.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 WHERE p.id IN (
			SELECT DISTINCT other.product_id
			FROM product_categories initial
			JOIN product_categories other ON other.category_id = initial.category_id
			WHERE initial.product_id = ?
		 )
		 ORDER BY p.nutriscore_score ASC, p.id ASC
		 LIMIT ?`,
		productID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding substitutes of product %d: %w", productID, err)
	}
	defer rows.Close()

	return collectProducts(rows, n)
}

// SearchLabels returns labels of products whose name contains term
// (case-insensitive for ASCII) or whose barcode starts with it.
func (db *DB) SearchLabels(ctx context.Context, term string, limit int) ([]string, error) {
	pattern := likePattern(term)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 WHERE p.name LIKE '%' || ? || '%' ESCAPE '\'
		    OR p.code LIKE ? || '%' ESCAPE '\'
		 ORDER BY p.name, p.id
		 LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching products %q: %w", term, err)
	}
	defer rows.Close()

	products, err := collectProducts(rows, limit)
	if err != nil {
		return nil, err
	}
	return labels(products), nil
}

// ListLabels returns the label of every product, ordered by name.
func (db *DB) ListLabels(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products p ORDER BY p.name, p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows, 0)
	if err != nil {
		return nil, err
	}
	return labels(products), nil
}

// Count returns the number of stored products.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting products: %w", err)
	}
	return n, nil
}

func collectProducts(rows *sql.Rows, capacity int) ([]model.Product, error) {
	products := make([]model.Product, 0, capacity)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating products: %w", err)
	}
	return products, nil
}

func labels(products []model.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Label()
	}
	return out
}
