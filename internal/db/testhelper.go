package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite gives a test the same write/read pool split the gateway
// runs with, backed by a fresh file in t.TempDir() with the demo dataset
// migrated in. The read pool carries query_only, so tests that need to
// mutate data must go through writeDB.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "gateway.sqlite"), defaultReadPoolSize)
	if err != nil {
		t.Fatalf("open pools: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := RunMigrations(writeDB); err != nil {
		t.Fatalf("migrate demo dataset: %v", err)
	}
	return writeDB, readDB
}
