package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_notesmith"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("fold", sqliteFold, true); err != nil {
				return fmt.Errorf("register fold SQL function: %w", err)
			}
			return nil
		},
	})
}

// sqliteFold lower-cases its argument with full Unicode case mapping.
// SQLite's built-in lower() only folds ASCII.
func sqliteFold(s string) string {
	return strings.ToLower(s)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
