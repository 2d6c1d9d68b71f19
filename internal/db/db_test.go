package db_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/db/testutil"
	"github.com/kuitang/notesmith/internal/testdb"
)

var baseTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustCreateUser(tb fataler, store *db.DB, id string) {
	tb.Helper()
	err := store.CreateUser(context.Background(), db.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      id,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	})
	if err != nil {
		tb.Fatalf("create user %s: %v", id, err)
	}
}

func mustOpenRapid(t *rapid.T) *db.DB {
	store, err := testdb.NewDBInMemory("rapid")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return store
}

// ============================================================================
// Notes
// ============================================================================

// Property: what is inserted is what is read back.
func testNoteRoundTrip_Properties(t *rapid.T) {
	store := mustOpenRapid(t)
	defer store.Close()
	ctx := context.Background()

	userID := testutil.ValidUserID().Draw(t, "user")
	mustCreateUser(t, store, userID)

	title := testutil.ArbitraryTitle().Draw(t, "title")
	content := testutil.ArbitraryContent().Draw(t, "content")
	tags := testutil.ArbitraryTags().Draw(t, "tags")

	created, err := store.InsertNote(ctx, db.NewNote{UserID: userID, Title: title, Content: content, Tags: tags, Now: baseTime})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.GetNote(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Title != title || got.Content != content || got.UserID != userID {
		t.Fatalf("round trip mismatch: got=%+v", got)
	}
	if len(got.Tags) != len(tags) {
		t.Fatalf("tags mismatch: got=%v want=%v", got.Tags, tags)
	}
	for i := range tags {
		if got.Tags[i] != tags[i] {
			t.Fatalf("tags mismatch at %d: got=%v want=%v", i, got.Tags, tags)
		}
	}
	if !got.CreatedAt.Equal(baseTime) || !got.UpdatedAt.Equal(baseTime) {
		t.Fatalf("timestamps mismatch: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestNoteRoundTrip_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testNoteRoundTrip_Properties)
}

func TestInsertNote_NilTagsStoredAsEmpty(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	created, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "t", Content: "c", Now: baseTime})
	require.NoError(t, err)
	assert.NotNil(t, created.Tags)

	got, err := store.GetNote(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Tags)
}

func TestInsertNote_RejectsEmptyTitleAndUnknownOwner(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	_, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "", Content: "c", Now: baseTime})
	assert.Error(t, err)

	_, err = store.InsertNote(ctx, db.NewNote{UserID: "user-missing", Title: "t", Content: "c", Now: baseTime})
	assert.Error(t, err)
}

// Property: list and search never return another owner's notes.
func testOwnerIsolation_Properties(t *rapid.T) {
	store := mustOpenRapid(t)
	defer store.Close()
	ctx := context.Background()

	mustCreateUser(t, store, "user-a")
	mustCreateUser(t, store, "user-b")
	word := testutil.SearchWord().Draw(t, "word")

	n := rapid.IntRange(1, 8).Draw(t, "n")
	wantA := 0
	for i := 0; i < n; i++ {
		owner := rapid.SampledFrom([]string{"user-a", "user-b"}).Draw(t, "owner")
		if owner == "user-a" {
			wantA++
		}
		if _, err := store.InsertNote(ctx, db.NewNote{UserID: owner, Title: word, Content: "body", Now: baseTime}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	listed, err := store.ListNotesByOwner(ctx, "user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found, err := store.SearchNotesByOwner(ctx, "user-a", word)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(listed) != wantA || len(found) != wantA {
		t.Fatalf("isolation broken: listed=%d found=%d want=%d", len(listed), len(found), wantA)
	}
	for _, note := range append(listed, found...) {
		if note.UserID != "user-a" {
			t.Fatalf("leaked note %d owned by %s", note.ID, note.UserID)
		}
	}
}

func TestOwnerIsolation_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testOwnerIsolation_Properties)
}

func TestListNotesByOwner_OrderedByUpdatedAt(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	first, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "first", Content: "c", Now: baseTime})
	require.NoError(t, err)
	second, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "second", Content: "c", Now: baseTime.Add(time.Second)})
	require.NoError(t, err)

	notes, err := store.ListNotesByOwner(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, []int64{first.ID, second.ID}, []int64{notes[0].ID, notes[1].ID})

	title := "first, edited"
	_, err = store.UpdateNote(ctx, first.ID, db.NotePatch{Title: &title, Now: baseTime.Add(2 * time.Second)})
	require.NoError(t, err)

	notes, err = store.ListNotesByOwner(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, first.ID}, []int64{notes[0].ID, notes[1].ID})
}

func TestListNotesByOwner_EmptyIsNotNil(t *testing.T) {
	store := testdb.New(t)
	notes, err := store.ListNotesByOwner(context.Background(), "user-nobody")
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

// ============================================================================
// Search
// ============================================================================

func TestSearchNotesByOwner_CaseInsensitiveUnicode(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	_, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "Trip to ZÜRICH", Content: "pack bags", Now: baseTime})
	require.NoError(t, err)
	_, err = store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "Groceries", Content: "Москва bread", Now: baseTime})
	require.NoError(t, err)

	for query, want := range map[string]int{
		"trip":    1,
		"zürich":  1,
		"ZüRiCh":  1,
		"москва":  1,
		"BAGS":    1,
		"bread":   1,
		"absent":  0,
		"r":       2,
		"  trip ": 0,
	} {
		found, err := store.SearchNotesByOwner(ctx, "user-a", query)
		require.NoError(t, err)
		assert.Len(t, found, want, "query %q", query)
	}
}

func TestSearchNotesByOwner_WildcardsMatchLiterally(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	_, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "plain", Content: "nothing special", Now: baseTime})
	require.NoError(t, err)
	_, err = store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "discount", Content: "50% off", Now: baseTime})
	require.NoError(t, err)

	found, err := store.SearchNotesByOwner(ctx, "user-a", "%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "discount", found[0].Title)

	found, err = store.SearchNotesByOwner(ctx, "user-a", "_")
	require.NoError(t, err)
	assert.Empty(t, found)
}

// Property: a blank query is the same as listing.
func testSearchBlankFallsBackToList_Properties(t *rapid.T) {
	store := mustOpenRapid(t)
	defer store.Close()
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	n := rapid.IntRange(0, 5).Draw(t, "n")
	for i := 0; i < n; i++ {
		if _, err := store.InsertNote(ctx, db.NewNote{
			UserID:  "user-a",
			Title:   testutil.ArbitraryTitle().Draw(t, "title"),
			Content: testutil.ArbitraryContent().Draw(t, "content"),
			Now:     baseTime.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	query := rapid.SampledFrom([]string{"", " ", "\t", "\n", " \t\r\n "}).Draw(t, "query")
	listed, err := store.ListNotesByOwner(ctx, "user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found, err := store.SearchNotesByOwner(ctx, "user-a", query)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != len(listed) {
		t.Fatalf("blank search returned %d notes, list returned %d", len(found), len(listed))
	}
	for i := range listed {
		if found[i].ID != listed[i].ID {
			t.Fatalf("order mismatch at %d", i)
		}
	}
}

func TestSearchBlankFallsBackToList_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSearchBlankFallsBackToList_Properties)
}

// Property: every note whose text contains the query is found, and only those.
func testSearchMatchesSubstring_Properties(t *rapid.T) {
	store := mustOpenRapid(t)
	defer store.Close()
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	query := testutil.ArbitraryText().Filter(func(s string) bool { return strings.TrimSpace(s) != "" }).Draw(t, "query")
	n := rapid.IntRange(1, 6).Draw(t, "n")
	for i := 0; i < n; i++ {
		title := testutil.ArbitraryTitle().Draw(t, "title")
		content := testutil.ArbitraryText().Draw(t, "content")
		if _, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: title, Content: content, Now: baseTime}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	listed, err := store.ListNotesByOwner(ctx, "user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found, err := store.SearchNotesByOwner(ctx, "user-a", query)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	folded := strings.ToLower(query)
	want := 0
	for _, note := range listed {
		if strings.Contains(strings.ToLower(note.Title), folded) || strings.Contains(strings.ToLower(note.Content), folded) {
			want++
		}
	}
	if len(found) != want {
		t.Fatalf("search %q found %d notes, want %d", query, len(found), want)
	}
}

func TestSearchMatchesSubstring_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSearchMatchesSubstring_Properties)
}

// ============================================================================
// Update and delete
// ============================================================================

func TestUpdateNote_SparsePatchAndStrictlyIncreasingUpdatedAt(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	created, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "t", Content: "c", Tags: []string{"x"}, Now: baseTime})
	require.NoError(t, err)

	// Same clock reading as creation: updatedAt must still move forward.
	content := "c2"
	updated, err := store.UpdateNote(ctx, created.ID, db.NotePatch{Content: &content, Now: baseTime})
	require.NoError(t, err)
	assert.Equal(t, "t", updated.Title)
	assert.Equal(t, "c2", updated.Content)
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	again, err := store.UpdateNote(ctx, created.ID, db.NotePatch{Now: baseTime})
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))

	tags := []string{}
	cleared, err := store.UpdateNote(ctx, created.ID, db.NotePatch{Tags: &tags, Now: baseTime.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{}, cleared.Tags)
	assert.True(t, cleared.UpdatedAt.Equal(baseTime.Add(time.Minute)))
}

func TestUpdateNote_MissingNote(t *testing.T) {
	store := testdb.New(t)
	title := "t"
	_, err := store.UpdateNote(context.Background(), 42, db.NotePatch{Title: &title, Now: baseTime})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteNote_FinalAndIDsNeverReused(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	created, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "t", Content: "c", Now: baseTime})
	require.NoError(t, err)

	deleted, err := store.DeleteNote(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteNote(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.GetNote(ctx, created.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	next, err := store.InsertNote(ctx, db.NewNote{UserID: "user-a", Title: "t", Content: "c", Now: baseTime})
	require.NoError(t, err)
	assert.Greater(t, next.ID, created.ID)
}

// ============================================================================
// Users, sessions and email tokens
// ============================================================================

func TestCreateUser_DuplicateEmailCaseInsensitive(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, db.User{ID: "user-1", Email: "Alice@Example.com", CreatedAt: baseTime, UpdatedAt: baseTime}))
	err := store.CreateUser(ctx, db.User{ID: "user-2", Email: "alice@example.COM", CreatedAt: baseTime, UpdatedAt: baseTime})
	assert.ErrorIs(t, err, db.ErrEmailTaken)

	u, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.False(t, u.EmailVerified)

	require.NoError(t, store.MarkEmailVerified(ctx, "user-1", baseTime.Add(time.Hour)))
	u, err = store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)

	_, err = store.GetUser(ctx, "user-missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.ErrorIs(t, store.MarkEmailVerified(ctx, "user-missing", baseTime), db.ErrNotFound)
}

func TestSessions_Lifecycle(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	require.NoError(t, store.CreateSession(ctx, db.Session{SessionID: "live", UserID: "user-a", ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime}))
	require.NoError(t, store.CreateSession(ctx, db.Session{SessionID: "stale", UserID: "user-a", ExpiresAt: baseTime.Add(-time.Hour), CreatedAt: baseTime}))

	s, err := store.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "user-a", s.UserID)
	assert.True(t, s.ExpiresAt.Equal(baseTime.Add(time.Hour)))

	removed, err := store.DeleteExpiredSessions(ctx, baseTime)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = store.GetSession(ctx, "stale")
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, store.DeleteSessionsByUser(ctx, "user-a"))
	_, err = store.GetSession(ctx, "live")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.NoError(t, store.DeleteSession(ctx, "live"))
}

func TestEmailTokens_SingleUseAndExpiry(t *testing.T) {
	store := testdb.New(t)
	ctx := context.Background()
	mustCreateUser(t, store, "user-a")

	require.NoError(t, store.CreateEmailToken(ctx, db.EmailToken{TokenHash: "h1", UserID: "user-a", ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime}))
	require.NoError(t, store.CreateEmailToken(ctx, db.EmailToken{TokenHash: "h2", UserID: "user-a", ExpiresAt: baseTime.Add(time.Hour), CreatedAt: baseTime}))

	userID, err := store.ConsumeEmailToken(ctx, "h1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)

	_, err = store.ConsumeEmailToken(ctx, "h1", baseTime)
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = store.ConsumeEmailToken(ctx, "h2", baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

// ============================================================================
// Open
// ============================================================================

func TestOpen_EncryptedFileRequiresKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "notes.db")
	ctx := context.Background()

	store, err := db.Open(ctx, db.Options{Path: path, Key: testdb.Key()})
	require.NoError(t, err)
	mustCreateUser(t, store, "user-a")
	require.NoError(t, store.Close())

	reopened, err := db.Open(ctx, db.Options{Path: path, Key: testdb.Key()})
	require.NoError(t, err)
	_, err = reopened.GetUser(ctx, "user-a")
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	wrong := make([]byte, db.KeySize)
	_, err = db.Open(ctx, db.Options{Path: path, Key: wrong})
	assert.Error(t, err)
}

func TestOpen_RejectsShortKey(t *testing.T) {
	_, err := db.Open(context.Background(), db.Options{Path: filepath.Join(t.TempDir(), "x.db"), Key: []byte("short")})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	key, err := db.ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = db.ParseKey(strings.Repeat("0f", db.KeySize))
	require.NoError(t, err)
	assert.Len(t, key, db.KeySize)

	_, err = db.ParseKey("zz")
	assert.Error(t, err)
	_, err = db.ParseKey("abcd")
	assert.Error(t, err)
}
