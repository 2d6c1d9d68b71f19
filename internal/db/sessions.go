package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is a stored login session.
type Session struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateSession inserts a session row.
func (d *DB) CreateSession(ctx context.Context, s Session) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		s.SessionID, s.UserID, s.ExpiresAt.UTC().UnixNano(), s.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns a session by id, expired or not.
func (d *DB) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var (
		s                    Session
		expiresAt, createdAt int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, expires_at, created_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&s.SessionID, &s.UserID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	s.ExpiresAt = time.Unix(0, expiresAt).UTC()
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	return s, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteSessionsByUser removes every session of a user.
func (d *DB) DeleteSessionsByUser(ctx context.Context, userID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now and
// returns how many were removed.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return n, nil
}

// EmailToken is a hashed, single-use email verification token.
type EmailToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateEmailToken stores a verification token hash.
func (d *DB) CreateEmailToken(ctx context.Context, t EmailToken) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO email_tokens (token_hash, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		t.TokenHash, t.UserID, t.ExpiresAt.UTC().UnixNano(), t.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create email token: %w", err)
	}
	return nil
}

// ConsumeEmailToken deletes the token and returns its user id. Missing and
// expired tokens yield ErrNotFound; an expired token is deleted either way.
func (d *DB) ConsumeEmailToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		userID    string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM email_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read email token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_tokens WHERE token_hash = ?`, tokenHash); err != nil {
		return "", fmt.Errorf("failed to consume email token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit email token: %w", err)
	}

	if expiresAt <= now.UTC().UnixNano() {
		return "", ErrNotFound
	}
	return userID, nil
}
