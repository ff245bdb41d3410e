package gormstore

import (
	"time"

	"github.com/sakif/pur-beurre/internal/model"
)

// Row types mirror the tables created by repository/sqlite so a database can
// move between backends. They stay private: the rest of the application only
// sees the model package.

type productRow struct {
	ID              int64  `gorm:"primaryKey"`
	Code            string `gorm:"not null;uniqueIndex;size:64"`
	Name            string `gorm:"not null;size:255"`
	NutriscoreGrade string `gorm:"not null;size:1"`
	NutriscoreScore int    `gorm:"not null;index:idx_products_score"`
	Fat             string `gorm:"not null;default:''"`
	SaturatedFat    string `gorm:"not null;default:''"`
	Sugars          string `gorm:"not null;default:''"`
	Salt            string `gorm:"not null;default:''"`
	URL             string `gorm:"not null;default:''"`
	ImageURL        string `gorm:"not null;default:''"`
}

func (productRow) TableName() string { return "products" }

func (r productRow) toModel() model.Product {
	return model.Product{
		ID:              r.ID,
		Code:            r.Code,
		Name:            r.Name,
		NutriscoreGrade: r.NutriscoreGrade,
		NutriscoreScore: r.NutriscoreScore,
		Fat:             r.Fat,
		SaturatedFat:    r.SaturatedFat,
		Sugars:          r.Sugars,
		Salt:            r.Salt,
		URL:             r.URL,
		ImageURL:        r.ImageURL,
	}
}

func productRowFrom(p *model.Product) productRow {
	return productRow{
		Code:            p.Code,
		Name:            p.Name,
		NutriscoreGrade: p.NutriscoreGrade,
		NutriscoreScore: p.NutriscoreScore,
		Fat:             p.Fat,
		SaturatedFat:    p.SaturatedFat,
		Sugars:          p.Sugars,
		Salt:            p.Salt,
		URL:             p.URL,
		ImageURL:        p.ImageURL,
	}
}

type categoryRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null;uniqueIndex;size:150"`
}

func (categoryRow) TableName() string { return "categories" }

type storeRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null;uniqueIndex;size:150"`
}

func (storeRow) TableName() string { return "stores" }

// Composite primary keys: autoIncrement must be switched off explicitly,
// gorm enables it on integer primary keys by default.
type productCategoryRow struct {
	ProductID  int64 `gorm:"primaryKey;autoIncrement:false"`
	CategoryID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (productCategoryRow) TableName() string { return "product_categories" }

type productStoreRow struct {
	ProductID int64 `gorm:"primaryKey;autoIncrement:false"`
	StoreID   int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (productStoreRow) TableName() string { return "product_stores" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:20"`
	Email        string `gorm:"not null;uniqueIndex;size:254"`
	FirstName    string `gorm:"not null;default:'';size:150"`
	PasswordHash string `gorm:"not null;default:''"`
	IsActive     bool   `gorm:"not null;default:true"`
	IsAdmin      bool   `gorm:"not null;default:false"`
	GitHubID     *int64 `gorm:"column:github_id;uniqueIndex:idx_users_github_id"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		IsAdmin:      r.IsAdmin,
		GitHubID:     r.GitHubID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type favoriteRow struct {
	UserID    string `gorm:"primaryKey;size:20"`
	ProductID int64  `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

func (favoriteRow) TableName() string { return "user_favorites" }

type passwordResetRow struct {
	Token     string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"not null;index;size:20"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (passwordResetRow) TableName() string { return "password_resets" }

func (r passwordResetRow) toModel() *model.PasswordReset {
	return &model.PasswordReset{
		Token:     r.Token,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt,
		UsedAt:    r.UsedAt,
		CreatedAt: r.CreatedAt,
	}
}
