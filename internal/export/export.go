// Package export writes JSON snapshots of a user's notes to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/s3client"
)

// NoteLister returns a user's notes. *notes.Service implements it.
type NoteLister interface {
	List(ctx context.Context, userID string) ([]notes.Note, error)
}

// ObjectStore stores snapshots. *s3client.Client implements it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]s3client.ObjectInfo, error)
	URL(ctx context.Context, key string) (string, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Snapshot is the document written for one export.
type Snapshot struct {
	UserID     string       `json:"userId"`
	ExportedAt time.Time    `json:"exportedAt"`
	Notes      []notes.Note `json:"notes"`
}

// Result describes a written snapshot.
type Result struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// Entry is one earlier snapshot.
type Entry struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Service exports notes.
type Service struct {
	notes   NoteLister
	objects ObjectStore
	clock   Clock
}

// NewService creates an export service. A nil clock uses the wall clock.
func NewService(lister NoteLister, objects ObjectStore, clock Clock) *Service {
	if clock == nil {
		clock = realClock{}
	}
	return &Service{notes: lister, objects: objects, clock: clock}
}

// Prefix returns the key prefix holding userID's snapshots.
func Prefix(userID string) string {
	return "exports/" + userID + "/"
}

// Export writes a snapshot of every note userID owns and returns where it went.
func (s *Service) Export(ctx context.Context, userID string) (*Result, error) {
	list, err := s.notes.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	body, err := json.MarshalIndent(Snapshot{UserID: userID, ExportedAt: now, Notes: list}, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to export notes", fmt.Errorf("encode snapshot: %w", err))
	}

	key := fmt.Sprintf("%s%d.json", Prefix(userID), now.UnixNano())
	if err := s.objects.PutObject(ctx, key, body, "application/json"); err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to export notes", err)
	}
	url, err := s.objects.URL(ctx, key)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to export notes", err)
	}

	obs.From(ctx).Info("notes_exported", "key", key, "count", len(list), "bytes", len(body))
	return &Result{Key: key, URL: url, Count: len(list)}, nil
}

// List returns userID's earlier snapshots, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.New(errs.Unauthenticated, "Unauthorized")
	}
	prefix := Prefix(userID)
	objects, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to list exports", err)
	}
	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, Entry{Key: obj.Key, Size: obj.Size, ExportedAt: exportedAt(prefix, obj)})
	}
	return entries, nil
}

// exportedAt reads the time from the key's nanosecond stamp, falling back
// to the object's modification time for keys written some other way.
func exportedAt(prefix string, obj s3client.ObjectInfo) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), ".json")
	if nanos, err := strconv.ParseInt(stamp, 10, 64); err == nil && nanos > 0 {
		return time.Unix(0, nanos).UTC()
	}
	return obj.LastModified.UTC()
}
