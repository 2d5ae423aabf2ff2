package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openhwp/navibridge/internal/infrastructure/database"
)

func openTestStore(t *testing.T) *SQLiteTokenStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     false,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE auth_tokens (
		email TEXT PRIMARY KEY,
		token_data TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatalf("creating auth_tokens table: %v", err)
	}

	return NewSQLiteTokenStore(db.DB)
}

func TestSQLiteTokenStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tokens := Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		IDToken:      "id",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}

	if err := store.Save(ctx, "user@example.com", tokens); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != tokens.AccessToken {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, tokens.AccessToken)
	}
	if got.RefreshToken != tokens.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, tokens.RefreshToken)
	}
	if !got.ExpiresAt.Equal(tokens.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, tokens.ExpiresAt)
	}
}

func TestSQLiteTokenStore_SaveOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := Tokens{AccessToken: "first", ExpiresAt: time.Now().Add(time.Hour)}
	second := Tokens{AccessToken: "second", ExpiresAt: time.Now().Add(2 * time.Hour)}

	if err := store.Save(ctx, "user@example.com", first); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := store.Save(ctx, "user@example.com", second); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Load(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "second" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "second")
	}
}

func TestSQLiteTokenStore_LoadMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNoStoredTokens) {
		t.Fatalf("Load() error = %v, want ErrNoStoredTokens", err)
	}
}

func TestSQLiteTokenStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tokens := Tokens{AccessToken: "access", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Save(ctx, "user@example.com", tokens); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, "user@example.com"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := store.Load(ctx, "user@example.com")
	if !errors.Is(err, ErrNoStoredTokens) {
		t.Fatalf("Load() after delete error = %v, want ErrNoStoredTokens", err)
	}

	// Deleting a missing row is not an error.
	if err := store.Delete(ctx, "user@example.com"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}
