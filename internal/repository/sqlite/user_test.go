package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/model"
)

// createTestUser is a test helper that creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		FirstName:    "Colette",
		PasswordHash: "$2a$04$hash",
		IsActive:     true,
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:        "colette@example.com",
		FirstName:    "Colette",
		PasswordHash: "$2a$04$hash",
		IsActive:     true,
	}

	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify the user was modified in-place (pointer receiver)
	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Email != user.Email || found.FirstName != "Colette" || !found.IsActive {
		t.Errorf("GetUserByID() = %+v, fields not persisted", found)
	}
	if found.GitHubID != nil {
		t.Errorf("GetUserByID() GitHubID = %v, want nil", *found.GitHubID)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.Create(context.Background(), &model.User{Email: "dup@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() duplicate error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_ManyWithoutGitHub(t *testing.T) {
	db := newTestDB(t)

	// NULL github_id must not trip the unique index.
	createTestUser(t, db, "a@example.com")
	createTestUser(t, db, "b@example.com")
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "find@example.com")

	found, err := db.GetByEmail(context.Background(), "find@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("GetByEmail() id = %s, want %s", found.ID, created.ID)
	}

	_, err = db.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdatePassword(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "pw@example.com")

	if err := db.UpdatePassword(context.Background(), user.ID, "$2a$04$new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	found, _ := db.GetUserByID(context.Background(), user.ID)
	if found.PasswordHash != "$2a$04$new" {
		t.Errorf("PasswordHash = %q, want updated hash", found.PasswordHash)
	}

	err := db.UpdatePassword(context.Background(), "missing", "x")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLinkGitHub(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := createTestUser(t, db, "first@example.com")
	second := createTestUser(t, db, "second@example.com")

	if err := db.LinkGitHub(ctx, first.ID, 4242); err != nil {
		t.Fatalf("LinkGitHub() error = %v", err)
	}

	found, err := db.GetByGitHubID(ctx, 4242)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if found.ID != first.ID {
		t.Errorf("GetByGitHubID() id = %s, want %s", found.ID, first.ID)
	}

	// A GitHub account belongs to one user only.
	err = db.LinkGitHub(ctx, second.ID, 4242)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("LinkGitHub() second user error = %v, want ErrConflict", err)
	}

	_, err = db.GetByGitHubID(ctx, 1)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByGitHubID(unknown) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// PASSWORD RESET TESTS
// =========================================================================

func TestPasswordReset_SingleUse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "reset@example.com")

	reset := &model.PasswordReset{
		Token:     "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(72 * time.Hour),
	}
	if err := db.CreateReset(ctx, reset); err != nil {
		t.Fatalf("CreateReset() error = %v", err)
	}

	got, err := db.GetReset(ctx, reset.Token)
	if err != nil {
		t.Fatalf("GetReset() error = %v", err)
	}
	if got.UserID != user.ID || got.UsedAt != nil {
		t.Errorf("GetReset() = %+v", got)
	}
	if !got.Valid(time.Now()) {
		t.Error("fresh reset token should be valid")
	}

	if err := db.MarkResetUsed(ctx, reset.Token); err != nil {
		t.Fatalf("MarkResetUsed() error = %v", err)
	}
	err = db.MarkResetUsed(ctx, reset.Token)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("MarkResetUsed() second call error = %v, want ErrNotFound", err)
	}

	got, _ = db.GetReset(ctx, reset.Token)
	if got.UsedAt == nil {
		t.Fatal("UsedAt not set after MarkResetUsed")
	}
	if got.Valid(time.Now()) {
		t.Error("used token should not be valid")
	}
}

func TestGetReset_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetReset(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetReset() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidateResets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "reset@example.com")
	other := createTestUser(t, db, "other@example.com")

	resets := []*model.PasswordReset{
		{Token: "first", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "second", UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "someone-else", UserID: other.ID, ExpiresAt: time.Now().Add(time.Hour)},
	}
	for _, r := range resets {
		if err := db.CreateReset(ctx, r); err != nil {
			t.Fatalf("CreateReset(%s) error = %v", r.Token, err)
		}
	}

	if err := db.InvalidateResets(ctx, user.ID); err != nil {
		t.Fatalf("InvalidateResets() error = %v", err)
	}

	for _, token := range []string{"first", "second"} {
		got, err := db.GetReset(ctx, token)
		if err != nil {
			t.Fatalf("GetReset(%s) error = %v", token, err)
		}
		if got.Valid(time.Now()) {
			t.Errorf("token %s still valid after InvalidateResets", token)
		}
	}
	got, err := db.GetReset(ctx, "someone-else")
	if err != nil {
		t.Fatalf("GetReset() error = %v", err)
	}
	if !got.Valid(time.Now()) {
		t.Error("another user's token was invalidated")
	}

	// nothing left to invalidate is not an error
	if err := db.InvalidateResets(ctx, user.ID); err != nil {
		t.Errorf("second InvalidateResets() error = %v", err)
	}
}
