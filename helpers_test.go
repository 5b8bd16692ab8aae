package duskdb

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}
