package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// TokenStore persists token sets across restarts so the bridge can skip
// the full password login when stored tokens are still valid.
type TokenStore interface {
	// Load returns the stored tokens for the account, or ErrNoStoredTokens.
	Load(ctx context.Context, email string) (*Tokens, error)

	// Save persists the tokens for the account, replacing any existing set.
	Save(ctx context.Context, email string, tokens Tokens) error

	// Delete removes stored tokens for the account.
	Delete(ctx context.Context, email string) error
}

// SQLiteTokenStore implements TokenStore using the auth_tokens table.
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewSQLiteTokenStore creates a token store backed by the given database.
func NewSQLiteTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db}
}

// Load returns the stored tokens for the account.
// Corrupt rows are reported as errors, not silently discarded; the caller
// decides whether to fall back to a full login.
func (s *SQLiteTokenStore) Load(ctx context.Context, email string) (*Tokens, error) {
	var tokenJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT token_data FROM auth_tokens WHERE email = ?", email,
	).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoStoredTokens
	}
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal([]byte(tokenJSON), &tokens); err != nil {
		return nil, fmt.Errorf("unmarshalling stored tokens: %w", err)
	}

	return &tokens, nil
}

// Save persists the tokens for the account.
func (s *SQLiteTokenStore) Save(ctx context.Context, email string, tokens Tokens) error {
	tokenJSON, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshalling tokens: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth_tokens (email, token_data, expires_at, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(email) DO UPDATE SET
		     token_data = excluded.token_data,
		     expires_at = excluded.expires_at,
		     updated_at = CURRENT_TIMESTAMP`,
		email,
		string(tokenJSON),
		tokens.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}

	return nil
}

// Delete removes stored tokens for the account.
func (s *SQLiteTokenStore) Delete(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE email = ?", email); err != nil {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	return nil
}
