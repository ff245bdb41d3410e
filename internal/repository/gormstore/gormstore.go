// Package gormstore implements the repository interfaces on top of gorm.
//
// repository/sqlite is the default backend: one file, no server. gormstore
// exists for deployments that share a PostgreSQL database between several
// web instances and the importer. The same code runs against SQLite through
// gorm.io/driver/sqlite, which is what the tests use.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/pur-beurre/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store wraps a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// Open connects to the database described by driver ("postgres" or "sqlite")
// and dsn, then migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: opening %s database: %w", driver, err)
	}
	return New(db)
}

// New migrates the schema on an existing connection and returns a Store.
func New(db *gorm.DB) (*Store, error) {
	err := db.AutoMigrate(
		&categoryRow{},
		&storeRow{},
		&productRow{},
		&productCategoryRow{},
		&productStoreRow{},
		&userRow{},
		&favoriteRow{},
		&passwordResetRow{},
	)
	if err != nil {
		return nil, fmt.Errorf("gormstore: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gormstore: getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gormstore: getting sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// isDuplicate reports a unique-constraint violation. TranslateError maps
// driver errors to gorm.ErrDuplicatedKey where the dialector supports it; the
// string checks cover drivers that do not.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
