package notes

import (
	"time"

	"github.com/kuitang/notesmith/internal/db"
)

// Note represents a note as returned to API clients.
type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateNoteParams contains parameters for creating a new note.
type CreateNoteParams struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateNoteParams contains parameters for updating an existing note.
// Nil fields are left unchanged; JSON null is treated as absent.
type UpdateNoteParams struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// DeleteResult is the body returned after a successful delete.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func fromRow(row db.Note) Note {
	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}
	return Note{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Content:   row.Content,
		Tags:      tags,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func fromRows(rows []db.Note) []Note {
	out := make([]Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out
}
