package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is a stored account.
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	PasswordHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const userColumns = "id, email, name, email_verified, password_hash, created_at, updated_at"

// CreateUser inserts a user. Emails are stored lower-cased.
// Returns ErrEmailTaken when the email is already registered.
func (d *DB) CreateUser(ctx context.Context, u User) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, normalizeEmail(u.Email), u.Name, boolToInt(u.EmailVerified), u.PasswordHash,
		u.CreatedAt.UTC().UnixNano(), u.UpdatedAt.UTC().UnixNano(),
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (d *DB) GetUser(ctx context.Context, id string) (User, error) {
	return d.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByEmail returns a user by case-insensitive email.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return d.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

func (d *DB) getUser(ctx context.Context, query string, arg string) (User, error) {
	var (
		u                    User
		verified             int64
		createdAt, updatedAt int64
	)
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &verified, &u.PasswordHash, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.EmailVerified = verified != 0
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	u.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return u, nil
}

// MarkEmailVerified sets email_verified for the user.
func (d *DB) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		now.UTC().UnixNano(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
