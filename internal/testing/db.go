// Package testing provides testing utilities and helpers for the AMS backend.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jakub-mrow/AMS-backend/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temporary SQLite database for testing with the
// production schema applied. Returns the database and a cleanup function
// that closes the connection and removes the file.
//
// Supported schema names: "ledger", "portfolio", "history", "client_data".
// Unknown names yield an empty database.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary file per test for isolation
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

// NewMemoryDB opens an in-memory SQLite database (pure Go driver) with the
// named production schema applied. Limited to a single connection so the
// in-memory database is shared across all statements.
func NewMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	schema, err := database.Schema(name)
	if err != nil {
		t.Fatalf("Failed to load schema %s: %v", name, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("Failed to apply schema %s: %v", name, err)
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}
