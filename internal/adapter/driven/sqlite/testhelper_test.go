package sqlite

import (
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB opens a migrated in-memory database. The shared cache lets the
// writer and reader pools see the same data; naming it after the test keeps
// tests isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL does not apply to in-memory databases.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(t.Name()), pragmas)

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
