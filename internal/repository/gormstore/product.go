package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

func (s *Store) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var row productRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("product", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("gormstore: getting product %d: %w", id, err)
	}
	p := row.toModel()
	return &p, nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (*model.Product, error) {
	var row productRow
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("product", code)
		}
		return nil, fmt.Errorf("gormstore: getting product by code %s: %w", code, err)
	}
	p := row.toModel()
	return &p, nil
}

// GetOrCreate inserts p unless its code is already stored; an existing row is
// never updated.
func (s *Store) GetOrCreate(ctx context.Context, p *model.Product) (int64, bool, error) {
	row := productRowFrom(p)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return 0, false, fmt.Errorf("gormstore: inserting product %s: %w", p.Code, res.Error)
	}
	if res.RowsAffected == 1 {
		p.ID = row.ID
		return row.ID, true, nil
	}

	var existing productRow
	err := s.db.WithContext(ctx).Select("id").Where("code = ?", p.Code).First(&existing).Error
	if err != nil {
		return 0, false, fmt.Errorf("gormstore: looking up product %s: %w", p.Code, err)
	}
	p.ID = existing.ID
	return existing.ID, false, nil
}

func (s *Store) AddCategory(ctx context.Context, productID, categoryID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&productCategoryRow{ProductID: productID, CategoryID: categoryID}).Error
	if err != nil {
		return fmt.Errorf("gormstore: linking product %d to category %d: %w", productID, categoryID, err)
	}
	return nil
}

func (s *Store) AddStore(ctx context.Context, productID, storeID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&productStoreRow{ProductID: productID, StoreID: storeID}).Error
	if err != nil {
		return fmt.Errorf("gormstore: linking product %d to store %d: %w", productID, storeID, err)
	}
	return nil
}

func (s *Store) Categories(ctx context.Context, productID int64) ([]model.Category, error) {
	var rows []categoryRow
	err := s.db.WithContext(ctx).
		Joins("JOIN product_categories pc ON pc.category_id = categories.id").
		Where("pc.product_id = ?", productID).
		Order("categories.name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing categories of product %d: %w", productID, err)
	}
	out := make([]model.Category, len(rows))
	for i, r := range rows {
		out[i] = model.Category{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

func (s *Store) Stores(ctx context.Context, productID int64) ([]model.Store, error) {
	var rows []storeRow
	err := s.db.WithContext(ctx).
		Joins("JOIN product_stores ps ON ps.store_id = stores.id").
		Where("ps.product_id = ?", productID).
		Order("stores.name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing stores of product %d: %w", productID, err)
	}
	out := make([]model.Store, len(rows))
	for i, r := range rows {
		out[i] = model.Store{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// BestSubstitutes mirrors the sqlite query: products reachable through any
// category of productID, deduplicated, healthiest first, ties by id.
func (s *Store) BestSubstitutes(ctx context.Context, productID int64, n int) ([]model.Product, error) {
	db := s.db.WithContext(ctx)
	shared := db.Table("product_categories AS initial").
		Select("DISTINCT other.product_id").
		Joins("JOIN product_categories other ON other.category_id = initial.category_id").
		Where("initial.product_id = ?", productID)

	var rows []productRow
	err := db.Where("id IN (?)", shared).
		Order("nutriscore_score ASC, id ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: finding substitutes of product %d: %w", productID, err)
	}
	return toProducts(rows), nil
}

// SearchLabels lowers both sides so matching is case-insensitive on
// PostgreSQL as well, where LIKE is case-sensitive.
func (s *Store) SearchLabels(ctx context.Context, term string, limit int) ([]string, error) {
	pattern := likePattern(term)
	var rows []productRow
	err := s.db.WithContext(ctx).
		Where(`LOWER(name) LIKE LOWER(?) ESCAPE '\'`, "%"+pattern+"%").
		Or(`code LIKE ? ESCAPE '\'`, pattern+"%").
		Order("name, id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: searching products %q: %w", term, err)
	}
	return labels(rows), nil
}

func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: listing products: %w", err)
	}
	return labels(rows), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&productRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("gormstore: counting products: %w", err)
	}
	return int(n), nil
}

// GetOrCreateCategory returns the id of the named category, creating it if needed.
func (s *Store) GetOrCreateCategory(ctx context.Context, name string) (int64, error) {
	row := categoryRow{Name: name}
	err := s.db.WithContext(ctx).
		Where(categoryRow{Name: name}).
		FirstOrCreate(&row).Error
	if err != nil && isDuplicate(err) {
		// lost a race with another writer: read the winner
		err = s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	}
	if err != nil {
		return 0, fmt.Errorf("gormstore: get-or-create category %q: %w", name, err)
	}
	return row.ID, nil
}

// GetOrCreateStore returns the id of the named store, creating it if needed.
func (s *Store) GetOrCreateStore(ctx context.Context, name string) (int64, error) {
	row := storeRow{Name: name}
	err := s.db.WithContext(ctx).
		Where(storeRow{Name: name}).
		FirstOrCreate(&row).Error
	if err != nil && isDuplicate(err) {
		err = s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	}
	if err != nil {
		return 0, fmt.Errorf("gormstore: get-or-create store %q: %w", name, err)
	}
	return row.ID, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	var rows []categoryRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: listing categories: %w", err)
	}
	out := make([]model.Category, len(rows))
	for i, r := range rows {
		out[i] = model.Category{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

func toProducts(rows []productRow) []model.Product {
	out := make([]model.Product, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

func labels(rows []productRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.toModel().Label()
	}
	return out
}
