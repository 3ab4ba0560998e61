// Package snapshot stores the live schema of a module database in a SQLite
// file so it can be planned against offline.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/koba/dbsync/internal/schema"
)

// Metadata keys written by Save
const (
	KeyCreatedAt = "created_at"
	KeyModule    = "module"
	KeyDatabase  = "database"

	// KeyUndeclared holds the comma separated live tables the module does
	// not declare
	KeyUndeclared = "undeclared_tables"
)

// Snapshot is the live schema of one module database at a point in time
type Snapshot struct {
	Metadata map[string]string
	Tables   map[string]*schema.ExistingTable

	// Operations is the plan that was pending when the snapshot was taken
	Operations []schema.Operation
}

// New creates an empty snapshot of module stamped with the current time
func New(module, database string) *Snapshot {
	return &Snapshot{
		Metadata: map[string]string{
			KeyCreatedAt: time.Now().UTC().Format(time.RFC3339),
			KeyModule:    module,
			KeyDatabase:  database,
		},
		Tables: make(map[string]*schema.ExistingTable),
	}
}

// Module returns the module the snapshot was taken of
func (s *Snapshot) Module() string {
	return s.Metadata[KeyModule]
}

// SetUndeclared records the live tables the module does not declare
func (s *Snapshot) SetUndeclared(tables []string) {
	if len(tables) == 0 {
		delete(s.Metadata, KeyUndeclared)
		return
	}
	s.Metadata[KeyUndeclared] = strings.Join(tables, ",")
}

// Undeclared returns the tables recorded by SetUndeclared
func (s *Snapshot) Undeclared() []string {
	v := s.Metadata[KeyUndeclared]
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Save writes the snapshot to outputPath, replacing any existing file
func Save(ctx context.Context, snap *Snapshot, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if _, err := os.Stat(outputPath); err == nil {
		if err := os.Remove(outputPath); err != nil {
			return fmt.Errorf("failed to remove existing snapshot: %w", err)
		}
	}

	db, err := sql.Open("sqlite", outputPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer db.Close()

	if err := initializeSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range snap.Metadata {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert metadata: %w", err)
		}
	}

	for name, table := range snap.Tables {
		tableJSON, err := json.Marshal(table)
		if err != nil {
			return fmt.Errorf("failed to marshal schema of %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO table_schemas (table_name, schema_json) VALUES (?, ?)", name, string(tableJSON)); err != nil {
			return fmt.Errorf("failed to insert schema of %s: %w", name, err)
		}
	}

	for _, op := range snap.Operations {
		opJSON, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO planned_operations (table_name, operation_json) VALUES (?, ?)", op.Table, string(opJSON)); err != nil {
			return fmt.Errorf("failed to insert operation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads a snapshot from a SQLite file
func Load(ctx context.Context, snapshotPath string) (*Snapshot, error) {
	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot file does not exist: %s", snapshotPath)
	}

	db, err := sql.Open("sqlite", snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	snap := &Snapshot{
		Metadata: make(map[string]string),
		Tables:   make(map[string]*schema.ExistingTable),
	}

	if err := loadMetadata(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := loadTables(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := loadOperations(ctx, db, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadMetadata(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM metadata")
	if err != nil {
		return fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan metadata: %w", err)
		}
		snap.Metadata[key] = value
	}
	return rows.Err()
}

func loadTables(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, "SELECT table_name, schema_json FROM table_schemas")
	if err != nil {
		return fmt.Errorf("failed to query table schemas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, tableJSON string
		if err := rows.Scan(&name, &tableJSON); err != nil {
			return fmt.Errorf("failed to scan table schema: %w", err)
		}

		var table schema.ExistingTable
		if err := json.Unmarshal([]byte(tableJSON), &table); err != nil {
			return fmt.Errorf("failed to unmarshal schema of %s: %w", name, err)
		}
		snap.Tables[name] = &table
	}
	return rows.Err()
}

func loadOperations(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, "SELECT operation_json FROM planned_operations ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to query planned operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opJSON string
		if err := rows.Scan(&opJSON); err != nil {
			return fmt.Errorf("failed to scan operation: %w", err)
		}

		var op schema.Operation
		if err := json.Unmarshal([]byte(opJSON), &op); err != nil {
			return fmt.Errorf("failed to unmarshal operation: %w", err)
		}
		snap.Operations = append(snap.Operations, op)
	}
	return rows.Err()
}
