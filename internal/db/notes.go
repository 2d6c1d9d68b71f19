package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Note is a stored note row.
type Note struct {
	ID        int64
	UserID    string
	Title     string
	Content   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNote holds the fields of a note to insert.
type NewNote struct {
	UserID  string
	Title   string
	Content string
	Tags    []string
	Now     time.Time
}

// NotePatch is a sparse update. Nil fields are left unchanged.
// UpdatedAt is always refreshed to max(Now, previous+1ns).
type NotePatch struct {
	Title   *string
	Content *string
	Tags    *[]string
	Now     time.Time
}

const noteColumns = "id, user_id, title, content, tags, created_at, updated_at"

// InsertNote stores a new note and returns it with its assigned id.
func (d *DB) InsertNote(ctx context.Context, n NewNote) (Note, error) {
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return Note{}, err
	}
	now := n.Now.UTC().UnixNano()

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO notes (user_id, title, content, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Title, n.Content, tags, now, now,
	)
	if err != nil {
		return Note{}, fmt.Errorf("failed to insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Note{}, fmt.Errorf("failed to read note id: %w", err)
	}

	return Note{
		ID:        id,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      nonNilTags(n.Tags),
		CreatedAt: time.Unix(0, now).UTC(),
		UpdatedAt: time.Unix(0, now).UTC(),
	}, nil
}

// GetNote returns a note by id regardless of owner.
func (d *DB) GetNote(ctx context.Context, id int64) (Note, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("failed to get note %d: %w", id, err)
	}
	return note, nil
}

// ListNotesByOwner returns every note owned by userID, oldest update first.
func (d *DB) ListNotesByOwner(ctx context.Context, userID string) ([]Note, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY updated_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return collectNotes(rows)
}

// SearchNotesByOwner returns the owner's notes whose title or content
// contains query, ignoring case. The query is matched literally. A blank
// query returns the same result as ListNotesByOwner.
func (d *DB) SearchNotesByOwner(ctx context.Context, userID, query string) ([]Note, error) {
	if strings.TrimSpace(query) == "" {
		return d.ListNotesByOwner(ctx, userID)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE user_id = ?1
		  AND (instr(fold(title), fold(?2)) > 0 OR instr(fold(content), fold(?2)) > 0)
		ORDER BY updated_at ASC, id ASC`,
		userID, query,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	return collectNotes(rows)
}

// UpdateNote applies a sparse patch and returns the resulting note.
func (d *DB) UpdateNote(ctx context.Context, id int64, p NotePatch) (Note, error) {
	var title, content, tags sql.NullString
	if p.Title != nil {
		title = sql.NullString{String: *p.Title, Valid: true}
	}
	if p.Content != nil {
		content = sql.NullString{String: *p.Content, Valid: true}
	}
	if p.Tags != nil {
		encoded, err := encodeTags(*p.Tags)
		if err != nil {
			return Note{}, err
		}
		tags = sql.NullString{String: encoded, Valid: true}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE notes SET
			title = COALESCE(?, title),
			content = COALESCE(?, content),
			tags = COALESCE(?, tags),
			updated_at = MAX(?, updated_at + 1)
		WHERE id = ?`,
		title, content, tags, p.Now.UTC().UnixNano(), id,
	)
	if err != nil {
		return Note{}, fmt.Errorf("failed to update note %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Note{}, fmt.Errorf("failed to update note %d: %w", id, err)
	}
	if affected == 0 {
		return Note{}, ErrNotFound
	}

	note, err := scanNote(tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err != nil {
		return Note{}, fmt.Errorf("failed to reload note %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("failed to commit note update: %w", err)
	}
	return note, nil
}

// DeleteNote removes a note. It reports whether a row was deleted.
func (d *DB) DeleteNote(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		n                    Note
		tags                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &tags, &createdAt, &updatedAt); err != nil {
		return Note{}, err
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return Note{}, fmt.Errorf("failed to decode tags of note %d: %w", n.ID, err)
	}
	n.Tags = nonNilTags(n.Tags)
	n.CreatedAt = time.Unix(0, createdAt).UTC()
	n.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return n, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(nonNilTags(tags))
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
