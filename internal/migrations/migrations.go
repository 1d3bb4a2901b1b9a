package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            latitude REAL,
            longitude REAL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS stock_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            pharmacy_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            manufacturer TEXT,
            description TEXT,
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            expiry TEXT NOT NULL,
            price REAL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(pharmacy_id) REFERENCES pharmacies(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_entries_pharmacy ON stock_entries(pharmacy_id);`,
	`CREATE TABLE IF NOT EXISTS medicine_alternatives (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            medicine_name TEXT NOT NULL,
            alternative_name TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(medicine_name, alternative_name)
        );`,
	`CREATE TABLE IF NOT EXISTS distress_signals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            patient_id INTEGER NOT NULL,
            medicine_name TEXT NOT NULL,
            latitude REAL,
            longitude REAL,
            status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
            created_at DATETIME NOT NULL,
            resolved_at DATETIME
        );`,
	`CREATE INDEX IF NOT EXISTS idx_distress_signals_open ON distress_signals(status, created_at);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            latitude DOUBLE PRECISION,
            longitude DOUBLE PRECISION,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS stock_entries (
            id SERIAL PRIMARY KEY,
            pharmacy_id INTEGER NOT NULL REFERENCES pharmacies(id),
            name TEXT NOT NULL,
            manufacturer TEXT,
            description TEXT,
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            expiry DATE NOT NULL,
            price DOUBLE PRECISION,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_entries_pharmacy ON stock_entries(pharmacy_id);`,
	`CREATE TABLE IF NOT EXISTS medicine_alternatives (
            id SERIAL PRIMARY KEY,
            medicine_name TEXT NOT NULL,
            alternative_name TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(medicine_name, alternative_name)
        );`,
	`CREATE TABLE IF NOT EXISTS distress_signals (
            id SERIAL PRIMARY KEY,
            patient_id INTEGER NOT NULL,
            medicine_name TEXT NOT NULL,
            latitude DOUBLE PRECISION,
            longitude DOUBLE PRECISION,
            status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
            created_at TIMESTAMPTZ NOT NULL,
            resolved_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS idx_distress_signals_open ON distress_signals(status, created_at);`,
}

// Run creates the schema for the connected driver.
func Run(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
