package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

// =========================================================================
// GET-OR-CREATE TESTS
// =========================================================================

func TestGetOrCreate_NewProduct(t *testing.T) {
	db := newTestDB(t)

	p := &model.Product{
		Code:            "3017620422003",
		Name:            "Nutella",
		NutriscoreGrade: "e",
		NutriscoreScore: 26,
		Fat:             "30.9g",
		URL:             "https://fr.openfoodfacts.org/produit/3017620422003",
	}

	id, created, err := db.GetOrCreate(context.Background(), p)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !created {
		t.Error("GetOrCreate() created = false for a new code")
	}
	if id == 0 || p.ID != id {
		t.Errorf("GetOrCreate() id = %d, p.ID = %d", id, p.ID)
	}

	found, err := db.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Name != "Nutella" || found.Fat != "30.9g" || found.NutriscoreScore != 26 {
		t.Errorf("GetByID() = %+v, fields not persisted", found)
	}
}

func TestGetOrCreate_ExistingCodeReturnsSameID(t *testing.T) {
	db := newTestDB(t)
	original := createTestProduct(t, db, "2222222222222", 1)

	// Same code, different data: the stored row wins, nothing is duplicated.
	dup := &model.Product{Code: "2222222222222", Name: "other", NutriscoreGrade: "e", NutriscoreScore: 30}
	id, created, err := db.GetOrCreate(context.Background(), dup)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if created {
		t.Error("GetOrCreate() created = true for an existing code")
	}
	if id != original.ID {
		t.Errorf("GetOrCreate() id = %d, want %d", id, original.ID)
	}

	n, _ := db.Count(context.Background())
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	found, _ := db.GetByID(context.Background(), id)
	if found.Name != original.Name {
		t.Errorf("existing product was overwritten: name = %q", found.Name)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), 999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByCode(t *testing.T) {
	db := newTestDB(t)
	created := createTestProduct(t, db, "3333333333333", 6)

	found, err := db.GetByCode(context.Background(), "3333333333333")
	if err != nil {
		t.Fatalf("GetByCode() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("GetByCode() id = %d, want %d", found.ID, created.ID)
	}

	_, err = db.GetByCode(context.Background(), "0")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByCode(unknown) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ASSOCIATION TESTS
// =========================================================================

func TestAddCategoryAndStore_AreIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := createTestProduct(t, db, "4444444444444", 14, "fromages")

	catID, _ := db.GetOrCreateCategory(ctx, "fromages")
	if err := db.AddCategory(ctx, p.ID, catID); err != nil {
		t.Fatalf("AddCategory() twice error = %v", err)
	}

	storeID, err := db.GetOrCreateStore(ctx, "Carrefour")
	if err != nil {
		t.Fatalf("GetOrCreateStore() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := db.AddStore(ctx, p.ID, storeID); err != nil {
			t.Fatalf("AddStore() #%d error = %v", i+1, err)
		}
	}

	cats, err := db.Categories(ctx, p.ID)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "fromages" {
		t.Errorf("Categories() = %+v, want [fromages]", cats)
	}

	stores, err := db.Stores(ctx, p.ID)
	if err != nil {
		t.Fatalf("Stores() error = %v", err)
	}
	if len(stores) != 1 || stores[0].Name != "Carrefour" {
		t.Errorf("Stores() = %+v, want [Carrefour]", stores)
	}
}

// =========================================================================
// SUBSTITUTE RANKING TESTS
// =========================================================================

func TestBestSubstitutes_RanksSharedCategoryProductsByScore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	initial := createTestProduct(t, db, "1000000000001", 14, "pizzas")
	better := createTestProduct(t, db, "1000000000002", -1, "pizzas")
	middle := createTestProduct(t, db, "1000000000003", 6, "pizzas", "fromages")
	cheese := createTestProduct(t, db, "1000000000004", 0, "fromages") // no shared category
	createTestProduct(t, db, "1000000000005", -5, "eaux")              // unrelated

	subs, err := db.BestSubstitutes(ctx, initial.ID, 6)
	if err != nil {
		t.Fatalf("BestSubstitutes() error = %v", err)
	}

	want := []int64{better.ID, middle.ID, initial.ID}
	if len(subs) != len(want) {
		t.Fatalf("BestSubstitutes() returned %d products, want %d", len(subs), len(want))
	}
	for i, id := range want {
		if subs[i].ID != id {
			t.Errorf("subs[%d].ID = %d, want %d", i, subs[i].ID, id)
		}
	}
	for _, s := range subs {
		if s.ID == cheese.ID {
			t.Error("product without a shared category was returned")
		}
	}
}

func TestBestSubstitutes_DeduplicatesAcrossCategories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	initial := createTestProduct(t, db, "2000000000001", 10, "pains", "desserts")
	both := createTestProduct(t, db, "2000000000002", 1, "pains", "desserts")

	subs, err := db.BestSubstitutes(ctx, initial.ID, 6)
	if err != nil {
		t.Fatalf("BestSubstitutes() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("BestSubstitutes() returned %d products, want 2", len(subs))
	}
	if subs[0].ID != both.ID {
		t.Errorf("subs[0].ID = %d, want %d", subs[0].ID, both.ID)
	}
}

func TestBestSubstitutes_LimitAndTieBreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	initial := createTestProduct(t, db, "3000000000001", 20, "riz")
	a := createTestProduct(t, db, "3000000000002", 2, "riz")
	b := createTestProduct(t, db, "3000000000003", 2, "riz")
	createTestProduct(t, db, "3000000000004", 5, "riz")

	subs, err := db.BestSubstitutes(ctx, initial.ID, 2)
	if err != nil {
		t.Fatalf("BestSubstitutes() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("BestSubstitutes() returned %d products, want 2", len(subs))
	}
	// equal scores: lower id first
	if subs[0].ID != a.ID || subs[1].ID != b.ID {
		t.Errorf("BestSubstitutes() ids = [%d %d], want [%d %d]", subs[0].ID, subs[1].ID, a.ID, b.ID)
	}
}

func TestBestSubstitutes_ProductWithoutCategory(t *testing.T) {
	db := newTestDB(t)
	lonely := createTestProduct(t, db, "4000000000001", 3)

	subs, err := db.BestSubstitutes(context.Background(), lonely.ID, 6)
	if err != nil {
		t.Fatalf("BestSubstitutes() error = %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("BestSubstitutes() returned %d products, want 0", len(subs))
	}
}

// =========================================================================
// LABEL TESTS
// =========================================================================

func TestSearchLabels(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, p := range []model.Product{
		{Code: "5000000000001", Name: "Pizza Reine", NutriscoreGrade: "c", NutriscoreScore: 5},
		{Code: "5000000000002", Name: "Pain complet", NutriscoreGrade: "a", NutriscoreScore: -2},
		{Code: "6000000000003", Name: "100% jus", NutriscoreGrade: "b", NutriscoreScore: 2},
	} {
		p := p
		if _, _, err := db.GetOrCreate(ctx, &p); err != nil {
			t.Fatalf("GetOrCreate() error = %v", err)
		}
	}

	tests := []struct {
		name string
		term string
		want []string
	}{
		{"case-insensitive name", "pizza", []string{"Pizza Reine [code-barres : 5000000000001]"}},
		{"code prefix", "5000", []string{
			"Pain complet [code-barres : 5000000000002]",
			"Pizza Reine [code-barres : 5000000000001]",
		}},
		{"wildcard is literal", "%", []string{"100% jus [code-barres : 6000000000003]"}},
		{"no match", "fromage", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SearchLabels(ctx, tt.term, 10)
			if err != nil {
				t.Fatalf("SearchLabels() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("SearchLabels(%q) = %v, want %v", tt.term, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("SearchLabels(%q)[%d] = %q, want %q", tt.term, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestListLabels(t *testing.T) {
	db := newTestDB(t)
	createTestProduct(t, db, "7000000000002", 1)
	createTestProduct(t, db, "7000000000001", 1)

	got, err := db.ListLabels(context.Background())
	if err != nil {
		t.Fatalf("ListLabels() error = %v", err)
	}
	want := []string{
		"Produit 7000000000001 [code-barres : 7000000000001]",
		"Produit 7000000000002 [code-barres : 7000000000002]",
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ListLabels() = %v, want %v", got, want)
	}
}

// =========================================================================
// CATALOG TESTS
// =========================================================================

func TestGetOrCreateCategory_Deduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.GetOrCreateCategory(ctx, "viandes")
	if err != nil {
		t.Fatalf("GetOrCreateCategory() error = %v", err)
	}
	second, err := db.GetOrCreateCategory(ctx, "viandes")
	if err != nil {
		t.Fatalf("GetOrCreateCategory() second error = %v", err)
	}
	if first != second {
		t.Errorf("GetOrCreateCategory() ids differ: %d vs %d", first, second)
	}

	if _, err := db.GetOrCreateCategory(ctx, "eaux"); err != nil {
		t.Fatalf("GetOrCreateCategory() error = %v", err)
	}
	cats, err := db.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "eaux" || cats[1].Name != "viandes" {
		t.Errorf("ListCategories() = %+v", cats)
	}
}

func TestGetOrCreateStore_Deduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, _ := db.GetOrCreateStore(ctx, "Auchan")
	b, _ := db.GetOrCreateStore(ctx, "Auchan")
	c, _ := db.GetOrCreateStore(ctx, "Lidl")
	if a != b {
		t.Errorf("same store got two ids: %d, %d", a, b)
	}
	if a == c {
		t.Error("different stores share an id")
	}
}
