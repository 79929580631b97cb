// Package testing provides testing utilities and helpers for the stocktrader project.
package testing

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/database"
	"github.com/aristath/stocktrader/internal/domain"
)

// NewTestDB creates a temporary file-backed SQLite database for testing with its schema applied.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and can be called multiple times safely.
//
// Supported names:
//   - "ledger" - runs the positions Migrator on a fresh file
//   - "client_data" - applies client_data_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, cleanup := NewTestDBWithSchema(t, name, "")

	if err := db.Migrate(); err != nil {
		cleanup()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	if name == "ledger" {
		migrator := database.NewMigrator(db.Conn(), domain.DefaultUserID, zerolog.Nop())
		if _, err := migrator.Run(context.Background()); err != nil {
			cleanup()
			t.Fatalf("Failed to migrate ledger schema: %v", err)
		}
	}

	return db, cleanup
}

// NewTestDBWithSchema creates a temporary SQLite database with a custom schema.
// The schema SQL will be executed directly on the database; it is how tests
// seed legacy layouts.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	// Temporary files give each test its own database and a real WAL
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	profile := database.ProfileStandard
	if name == "ledger" {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			_ = db.Close()
			_ = os.Remove(tmpPath)
			t.Fatalf("Failed to execute custom schema for test database %s: %v", name, err)
		}
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, p := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", p, err)
			}
		}
	}
}
