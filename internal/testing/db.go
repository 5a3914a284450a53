// Package testing provides testing utilities and helpers.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/mkarlsen/fxbase/internal/database"
)

// NewTestDB creates a temp-file SQLite database for testing with automatic
// schema migration. Returns the database and an idempotent cleanup function.
//
// Supported schema names:
//   - "portfolio" - applies portfolio_schema.sql
//   - "history" - applies history_schema.sql
//   - Unknown names - creates an empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temp files rather than :memory: so each test gets an isolated database
	// that behaves like production (WAL, shared across connections).
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
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
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}
