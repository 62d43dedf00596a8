package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserStore provides access to user accounts in the studies database
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a user store with the given connection pool
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &UserStore{pool: pool}, nil
}

// Create inserts a new user with a generated id
func (s *UserStore) Create(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error) {
	user := User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrUserAlreadyExists, username)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	slog.InfoContext(ctx, "user created", "username", username)
	return &user, nil
}

// GetByUsername returns a user by username
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE username = $1`, username)

	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
