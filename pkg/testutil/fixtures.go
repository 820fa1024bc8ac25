// Package testutil builds SQLite fixture databases for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// NewDB creates a database file in a temporary directory, runs statements
// against it and returns its path. The file is closed before returning so
// callers open it the same way production code does.
func NewDB(t testing.TB, name string, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening fixture database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing fixture database: %v", err)
		}
	}()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture statement failed: %v\n%s", err, stmt)
		}
	}
	return path
}

// ReportsSchema is a reports table shaped like typical document extraction
// output, plus a small lookup table.
var ReportsSchema = []string{
	`CREATE TABLE reports (
		id TEXT PRIMARY KEY,
		file_hash TEXT,
		highest_classification TEXT,
		caveats TEXT,
		file_path TEXT,
		locations TEXT,
		keywords TEXT,
		MGRS TEXT,
		full_text TEXT,
		processed_time TEXT,
		page_count INTEGER
	)`,
	`INSERT INTO reports VALUES
		('r1', '3f79bb7b435b05321651daefd374cdc681dc06faa65e374e38337b88ca046dea', 'UNCLASSIFIED', '', '/reports/2024/r1.pdf', 'Washington DC', 'border, surveillance', '18SUJ2337106519',
		 'Field report on border intelligence activities near the northern checkpoint. Surveillance teams observed vehicle movement.', '2024-01-01T10:00:00', 3),
		('r2', '1b4f0e9851971998e732078544c96b36c3d01cedf7caa332359d6f1d83567014', 'CONFIDENTIAL', 'REL TO USA, GBR', '/reports/2024/r2.pdf', 'Paris', 'maritime, ports', '31UDQ4825111932',
		 'Analysis of maritime logistics and port security operations. Intelligence assessment indicates increased shipping traffic.', '2024-01-02T11:30:00', 12),
		('r3', '60303ae22b998861bce3b28f33eec1be758a213c86c93c076dbe9f558c11c752', 'SECRET', 'NOFORN', '/reports/2024/r3.pdf', 'Minnesota', 'signals, exercise', '15T XY 12345 67890',
		 'Summary of signals collection during the winter exercise. Communications intercepts were catalogued for review.', '2024-01-03T09:15:00', 7),
		('r4', 'fd61a03af4f77d870fc21e05e7e80678095c92d808cfb3b5c279ee04c74aca13', 'UNCLASSIFIED', '', '/reports/2024/r4.pdf', 'Sydney', 'osint, infrastructure', '56HLH3436848815',
		 'Open source review of regional news coverage regarding infrastructure projects and public transportation.', '2024-01-04T13:00:00', 1),
		('r5', 'a4e624d686e03ed2767c0abd85c14426b0b1157d2ce81d27bb4fe4f6f01d688a', 'CONFIDENTIAL', 'NOFORN', '/reports/2024/r5.pdf', 'Coastal region', 'border, customs', NULL,
		 'Intelligence briefing covering border crossings, customs enforcement and smuggling routes in the coastal region.', '2024-01-05T08:45:00', 25)`,
	`CREATE TABLE test_data (
		id INTEGER PRIMARY KEY,
		name TEXT,
		description TEXT,
		classification TEXT
	)`,
	`INSERT INTO test_data (name, description, classification) VALUES
		('Alpha', 'First record', 'UNCLASSIFIED'),
		('Bravo', 'Second record', 'CONFIDENTIAL'),
		('Charlie', 'Third record', 'SECRET'),
		('Delta', 'Fourth record', 'UNCLASSIFIED'),
		('Echo', 'Fifth record', 'CONFIDENTIAL')`,
}

// ReportsDB returns the path of a fresh database holding ReportsSchema.
func ReportsDB(t testing.TB) string {
	t.Helper()
	return NewDB(t, "reports.db", ReportsSchema...)
}

// EmptyDB returns the path of a valid database without tables.
func EmptyDB(t testing.TB) string {
	t.Helper()
	return NewDB(t, "empty.db", `PRAGMA user_version = 1`)
}
