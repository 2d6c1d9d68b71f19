package notes

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/errs"
)

// Store is the persistence the note service needs. *db.DB implements it.
type Store interface {
	GetUser(ctx context.Context, id string) (db.User, error)
	InsertNote(ctx context.Context, n db.NewNote) (db.Note, error)
	GetNote(ctx context.Context, id int64) (db.Note, error)
	ListNotesByOwner(ctx context.Context, userID string) ([]db.Note, error)
	SearchNotesByOwner(ctx context.Context, userID, query string) ([]db.Note, error)
	UpdateNote(ctx context.Context, id int64, p db.NotePatch) (db.Note, error)
	DeleteNote(ctx context.Context, id int64) (bool, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures the note service.
type Options struct {
	// EnforceOwnership makes Get, Update and Delete report "Note not found"
	// for notes owned by another user. When false, those operations act on
	// any existing note once the caller is authenticated.
	EnforceOwnership bool

	// Clock defaults to the wall clock.
	Clock Clock
}

var (
	errUnauthorized = errs.New(errs.Unauthenticated, "Unauthorized")
	errUserNotFound = errs.New(errs.NotFound, "User not found")
	errNoteNotFound = errs.New(errs.NotFound, "Note not found")
	errInvalidID    = errs.New(errs.InvalidArgument, "Invalid note ID")
)

// Service implements note operations on behalf of an authenticated user.
type Service struct {
	store Store
	opts  Options
}

// NewService creates a note service.
func NewService(store Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Service{store: store, opts: opts}
}

// ParseID parses a note id path segment. Only a plain base-10 integer is accepted.
func ParseID(raw string) (int64, error) {
	if strings.HasPrefix(raw, "+") {
		return 0, errInvalidID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errInvalidID
	}
	return id, nil
}

// List returns all notes owned by userID, oldest update first.
func (s *Service) List(ctx context.Context, userID string) ([]Note, error) {
	if err := s.requireUser(ctx, userID, "Failed to fetch notes"); err != nil {
		return nil, err
	}
	rows, err := s.store.ListNotesByOwner(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to fetch notes", err)
	}
	return fromRows(rows), nil
}

// Search returns the caller's notes whose title or content contains query,
// ignoring case. A blank query behaves like List without the user check.
func (s *Service) Search(ctx context.Context, userID, query string) ([]Note, error) {
	if userID == "" {
		return nil, errUnauthorized
	}
	rows, err := s.store.SearchNotesByOwner(ctx, userID, query)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to search notes", err)
	}
	return fromRows(rows), nil
}

// Get returns one note by id.
func (s *Service) Get(ctx context.Context, userID, rawID string) (*Note, error) {
	if userID == "" {
		return nil, errUnauthorized
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID, "Failed to fetch note"); err != nil {
		return nil, err
	}
	row, err := s.loadNote(ctx, userID, id, "Failed to fetch note")
	if err != nil {
		return nil, err
	}
	note := fromRow(row)
	return &note, nil
}

// Create stores a new note owned by userID.
func (s *Service) Create(ctx context.Context, userID string, params CreateNoteParams) (*Note, error) {
	if userID == "" {
		return nil, errUnauthorized
	}
	if err := ValidateCreate(params); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID, "Failed to create note"); err != nil {
		return nil, err
	}

	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	row, err := s.store.InsertNote(ctx, db.NewNote{
		UserID:  userID,
		Title:   params.Title,
		Content: params.Content,
		Tags:    tags,
		Now:     s.opts.Clock.Now(),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to create note", err)
	}
	note := fromRow(row)
	return &note, nil
}

// Update applies a sparse patch to a note. updatedAt is refreshed even when
// the patch is empty.
func (s *Service) Update(ctx context.Context, userID, rawID string, params UpdateNoteParams) (*Note, error) {
	if userID == "" {
		return nil, errUnauthorized
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	if err := ValidateUpdate(params); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID, "Failed to update note"); err != nil {
		return nil, err
	}
	if s.opts.EnforceOwnership {
		if _, err := s.loadNote(ctx, userID, id, "Failed to update note"); err != nil {
			return nil, err
		}
	}

	row, err := s.store.UpdateNote(ctx, id, db.NotePatch{
		Title:   params.Title,
		Content: params.Content,
		Tags:    params.Tags,
		Now:     s.opts.Clock.Now(),
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNoteNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to update note", err)
	}
	note := fromRow(row)
	return &note, nil
}

// Delete removes a note permanently.
func (s *Service) Delete(ctx context.Context, userID, rawID string) (*DeleteResult, error) {
	if userID == "" {
		return nil, errUnauthorized
	}
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID, "Failed to delete note"); err != nil {
		return nil, err
	}
	if s.opts.EnforceOwnership {
		if _, err := s.loadNote(ctx, userID, id, "Failed to delete note"); err != nil {
			return nil, err
		}
	}

	deleted, err := s.store.DeleteNote(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to delete note", err)
	}
	if !deleted {
		return nil, errNoteNotFound
	}
	return &DeleteResult{Success: true, Message: "Note deleted"}, nil
}

func (s *Service) requireUser(ctx context.Context, userID, failure string) error {
	if userID == "" {
		return errUnauthorized
	}
	_, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return errUserNotFound
	}
	if err != nil {
		return errs.Wrap(errs.Internal, failure, err)
	}
	return nil
}

func (s *Service) loadNote(ctx context.Context, userID string, id int64, failure string) (db.Note, error) {
	row, err := s.store.GetNote(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return db.Note{}, errNoteNotFound
	}
	if err != nil {
		return db.Note{}, errs.Wrap(errs.Internal, failure, err)
	}
	if s.opts.EnforceOwnership && row.UserID != userID {
		return db.Note{}, errNoteNotFound
	}
	return row, nil
}
