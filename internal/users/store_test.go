package users

import (
	"context"
	"errors"
	"testing"

	"github.com/suPer8Hu/ai-chat/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb, &User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func TestCreate_AndFind(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	u, err := store.Create(ctx, "a@test.com", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set, got %+v", u)
	}

	byEmail, err := store.FindByEmail(ctx, "a@test.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Fatalf("expected id %q, got %q", u.ID, byEmail.ID)
	}

	byID, err := store.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != "a@test.com" || byID.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", byID)
	}
}

func TestCreate_DuplicateEmailDoesNotInsert(t *testing.T) {
	gdb := openTestDB(t)
	store := NewStore(gdb)
	ctx := context.Background()

	if _, err := store.Create(ctx, "dup@test.com", "h1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.Create(ctx, "dup@test.com", "h2")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	var n int64
	if err := gdb.Model(&User{}).Where("email = ?", "dup@test.com").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 row, got %d", n)
	}
}

func TestEmailIsCaseSensitive(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	if _, err := store.Create(ctx, "Case@test.com", "h"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.FindByEmail(ctx, "case@test.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFind_Unknown(t *testing.T) {
	store := NewStore(openTestDB(t))
	if _, err := store.FindByID(context.Background(), "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
