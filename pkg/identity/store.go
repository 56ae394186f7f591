package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrUserNotFound indicates no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// Store reads and updates mirrored user records.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateDisplayName(ctx context.Context, id int64, name string) (*User, error)
}

// PostgresStore implements Store over PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `
		SELECT id, email, COALESCE(name, ''), created_at FROM users WHERE id = $1
	`, id)
}

// GetUserByEmail retrieves a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `
		SELECT id, email, COALESCE(name, ''), created_at FROM users WHERE email = $1
	`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg interface{}) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateDisplayName updates the one user field this service owns.
func (s *PostgresStore) UpdateDisplayName(ctx context.Context, id int64, name string) (*User, error) {
	name = strings.TrimSpace(name)
	result, err := s.db.ExecContext(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}
