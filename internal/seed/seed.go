// Package seed loads YAML fixtures of users and their notes into a store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
)

//go:embed fixtures/default.yaml
var defaultFixtures []byte

// Fixtures is the document root.
type Fixtures struct {
	Users []User `yaml:"users"`
}

// User is one account to register, with the notes it owns.
type User struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Verified bool   `yaml:"verified"`
	Notes    []Note `yaml:"notes"`
}

// Note is one note to create.
type Note struct {
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

// Parse decodes fixtures strictly: unknown keys are errors.
func Parse(data []byte) (*Fixtures, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixtures
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: parse fixtures: %w", err)
	}
	for i, u := range f.Users {
		if u.Email == "" || u.Password == "" {
			return nil, fmt.Errorf("seed: user %d: email and password are required", i)
		}
	}
	return &f, nil
}

// Default returns the embedded development fixtures.
func Default() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

// UserRegistrar registers accounts. *auth.UserService implements it.
type UserRegistrar interface {
	Register(ctx context.Context, emailAddr, password, name string) (*auth.User, error)
}

// EmailVerifier marks an address verified without a token. *db.DB implements it.
type EmailVerifier interface {
	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error
}

// NoteCreator creates notes. *notes.Service implements it.
type NoteCreator interface {
	Create(ctx context.Context, userID string, params notes.CreateNoteParams) (*notes.Note, error)
}

// Result counts what Apply created.
type Result struct {
	Users   int
	Skipped int
	Notes   int
}

// Seeder applies fixtures.
type Seeder struct {
	users    UserRegistrar
	verifier EmailVerifier
	notes    NoteCreator
	now      func() time.Time
}

// NewSeeder creates a Seeder.
func NewSeeder(users UserRegistrar, verifier EmailVerifier, notes NoteCreator) *Seeder {
	return &Seeder{users: users, verifier: verifier, notes: notes, now: time.Now}
}

// Apply registers every fixture user and creates their notes. Users whose
// email is already registered are skipped along with their notes, so
// running it twice creates nothing new.
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) (Result, error) {
	logger := obs.Pkg("seed")
	var res Result
	for _, u := range f.Users {
		user, err := s.users.Register(ctx, u.Email, u.Password, u.Name)
		if errs.Is(err, errs.AlreadyExists) {
			logger.Info("seed_user_exists", "email", u.Email)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed: register %s: %w", u.Email, err)
		}
		res.Users++

		if u.Verified {
			if err := s.verifier.MarkEmailVerified(ctx, user.ID, s.now()); err != nil {
				return res, fmt.Errorf("seed: verify %s: %w", u.Email, err)
			}
		}

		for _, n := range u.Notes {
			_, err := s.notes.Create(ctx, user.ID, notes.CreateNoteParams{
				Title:   n.Title,
				Content: n.Content,
				Tags:    n.Tags,
			})
			if err != nil {
				return res, fmt.Errorf("seed: note %q for %s: %w", n.Title, u.Email, err)
			}
			res.Notes++
		}
		logger.Info("seed_user_created", "email", u.Email, "notes", len(u.Notes))
	}
	return res, nil
}
