package snapshot

import (
	"context"
	"database/sql"
)

const (
	// SQLite schema for storing snapshots
	createMetadataTable = `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	createTableSchemasTable = `
		CREATE TABLE IF NOT EXISTS table_schemas (
			table_name TEXT PRIMARY KEY,
			schema_json TEXT NOT NULL
		);
	`

	createOperationsTable = `
		CREATE TABLE IF NOT EXISTS planned_operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			operation_json TEXT NOT NULL
		);
	`
)

// initializeSchema creates the snapshot tables
func initializeSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{createMetadataTable, createTableSchemasTable, createOperationsTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
