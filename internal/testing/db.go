// Package testing provides testing utilities and helpers for the treasury project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/treasury/internal/database"
)

// NewTestDB creates a file-backed SQLite database for testing with the embedded schema applied.
// Returns the database instance and a cleanup function that closes and removes it.
//
// Supported schema names:
//   - "history" - holdings and runs tables
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpPath := createTempPath(t, name)

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileLedger,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			_ = os.Remove(p)
		}
	}
}

// NewHistoryDB is NewTestDB for the holdings history with cleanup registered on t
func NewHistoryDB(t *testing.T) *database.DB {
	t.Helper()
	db, cleanup := NewTestDB(t, "history")
	t.Cleanup(cleanup)
	return db
}

func createTempPath(t *testing.T, name string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	return tmpPath
}
