package testdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kuitang/notesmith/internal/db"
)

var dbCounter atomic.Uint64

// testKey is a fixed SQLCipher key so tests exercise the encrypted code path.
var testKey = strings.Repeat("ab", db.KeySize)

// NewDBInMemory creates a migrated, encrypted in-memory database for tests.
// Every call returns an isolated database.
func NewDBInMemory(name string) (*db.DB, error) {
	if name == "" {
		name = "test"
	}
	name = fmt.Sprintf("%s-%d", strings.NewReplacer("/", "_", " ", "_").Replace(name), dbCounter.Add(1))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_foreign_keys=on", name, testKey)
	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// A single connection keeps the in-memory database alive and avoids
	// shared-cache table locks, which ignore the busy timeout.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	store := db.New(sqlDB)
	if err := store.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate in-memory database: %w", err)
	}
	return store, nil
}

// New is NewDBInMemory for testing.TB callers; the database is closed on cleanup.
func New(tb testing.TB) *db.DB {
	tb.Helper()
	store, err := NewDBInMemory(tb.Name())
	if err != nil {
		tb.Fatalf("testdb: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// Key returns the hex SQLCipher key used for test databases.
func Key() []byte {
	key, _ := hex.DecodeString(testKey)
	return key
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
