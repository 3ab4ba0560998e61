package generator

import (
	"fmt"

	"github.com/koba/dbsync/internal/schema"
)

// AuditTables returns the statements creating the structural and data
// change log tables
func AuditTables() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id SERIAL PRIMARY KEY,
  action VARCHAR(50) NOT NULL,
  description TEXT,
  timestamp TIMESTAMP DEFAULT NOW()
);`, schema.MigrationLogTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id SERIAL PRIMARY KEY,
  table_name VARCHAR(255) NOT NULL,
  column_name VARCHAR(255) NOT NULL,
  old_value TEXT,
  new_value TEXT,
  change_type VARCHAR(10) NOT NULL CHECK (change_type IN ('INSERT', 'UPDATE', 'DELETE')),
  timestamp TIMESTAMP DEFAULT NOW()
);`, schema.MigrationLogDataTable),
	}
}

// InsertLogEntry is the parameterized insert of one structural log row
func InsertLogEntry() string {
	return fmt.Sprintf("INSERT INTO %s (action, description) VALUES ($1, $2)", schema.MigrationLogTable)
}

// EnableExtension returns the operation installing a database extension
func EnableExtension(name string) schema.Operation {
	return schema.Operation{
		Action:      schema.ActionEnableExtension,
		Statements:  []string{fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s;", name)},
		Description: fmt.Sprintf("Extension '%s' enabled", name),
	}
}
