package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/koba/dbsync/internal/generator"
	"github.com/koba/dbsync/internal/schema"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Introspector reads live table metadata from the PostgreSQL catalog. It
// never caches results.
type Introspector struct {
	q      Querier
	schema string
}

// NewIntrospector creates an introspector for the public schema
func NewIntrospector(q Querier) *Introspector {
	return &Introspector{q: q, schema: "public"}
}

// TableExists reports whether the table exists
func (p *Introspector) TableExists(ctx context.Context, tableName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`
	var exists bool
	if err := p.q.QueryRowContext(ctx, query, p.schema, tableName).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", tableName, err)
	}
	return exists, nil
}

// ExtensionInstalled reports whether the extension is installed
func (p *Introspector) ExtensionInstalled(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check extension %s: %w", name, err)
	}
	return exists, nil
}

// ListTables returns the name of every ordinary table in the schema, sorted
func (p *Introspector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.q.QueryContext(ctx,
		"SELECT tablename FROM pg_tables WHERE schemaname = $1 ORDER BY tablename", p.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetTableSchema retrieves the columns, key constraints, foreign keys and
// tracking state of a table
func (p *Introspector) GetTableSchema(ctx context.Context, tableName string) (*schema.ExistingTable, error) {
	columns, err := p.getColumns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if err := p.markKeys(ctx, tableName, columns); err != nil {
		return nil, err
	}

	foreignKeys, err := p.getForeignKeys(ctx, tableName)
	if err != nil {
		return nil, err
	}

	tracking, err := p.getTracking(ctx, tableName)
	if err != nil {
		return nil, err
	}

	return &schema.ExistingTable{
		Name:        tableName,
		Columns:     columns,
		ForeignKeys: foreignKeys,
		Tracking:    tracking,
	}, nil
}

func (p *Introspector) getColumns(ctx context.Context, tableName string) ([]schema.ExistingColumn, error) {
	query := `
		SELECT
			column_name,
			UPPER(CASE WHEN data_type = 'USER-DEFINED' THEN udt_name ELSE data_type END),
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			datetime_precision,
			is_nullable,
			column_default,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`
	rows, err := p.q.QueryContext(ctx, query, p.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.ExistingColumn
	for rows.Next() {
		var col schema.ExistingColumn
		var nullable string
		var length, precision, scale, timePrecision sql.NullInt64
		var defaultValue sql.NullString

		if err := rows.Scan(&col.Name, &col.SQLType, &length, &precision, &scale, &timePrecision, &nullable, &defaultValue, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.SQLType = typeWithModifier(col.SQLType, length, precision, scale, timePrecision)
		col.Required = nullable == "NO"
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// typeWithModifier appends the modifier the catalog reports separately. The
// default time precision of 6 is left implicit.
func typeWithModifier(dataType string, length, precision, scale, timePrecision sql.NullInt64) string {
	switch dataType {
	case "CHARACTER VARYING", "CHARACTER":
		if length.Valid {
			return fmt.Sprintf("%s(%d)", dataType, length.Int64)
		}
	case "NUMERIC":
		if precision.Valid {
			return fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
	case "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE", "TIME WITHOUT TIME ZONE", "TIME WITH TIME ZONE":
		if timePrecision.Valid && timePrecision.Int64 != 6 {
			return schema.FormatType(dataType, fmt.Sprintf("(%d)", timePrecision.Int64))
		}
	}
	return dataType
}

// markKeys flags primary key columns and columns carrying a single-column
// unique constraint
func (p *Introspector) markKeys(ctx context.Context, tableName string, columns []schema.ExistingColumn) error {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1
			AND tc.table_name = $2
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`
	rows, err := p.q.QueryContext(ctx, query, p.schema, tableName)
	if err != nil {
		return fmt.Errorf("failed to get key constraints: %w", err)
	}
	defer rows.Close()

	type constraint struct {
		kind    string
		columns []string
	}
	var order []string
	constraints := make(map[string]*constraint)
	for rows.Next() {
		var name, kind, column string
		if err := rows.Scan(&name, &kind, &column); err != nil {
			return fmt.Errorf("failed to scan key constraint: %w", err)
		}
		c, ok := constraints[name]
		if !ok {
			c = &constraint{kind: kind}
			constraints[name] = c
			order = append(order, name)
		}
		c.columns = append(c.columns, column)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	index := make(map[string]int, len(columns))
	for i, col := range columns {
		index[col.Name] = i
	}
	for _, name := range order {
		c := constraints[name]
		for _, column := range c.columns {
			i, ok := index[column]
			if !ok {
				continue
			}
			if c.kind == "PRIMARY KEY" {
				columns[i].PrimaryKey = true
			} else if len(c.columns) == 1 {
				columns[i].Unique = true
			}
		}
	}
	return nil
}

// fkRule spells out a pg_constraint action code the way
// information_schema.referential_constraints does
func fkRule(column string) string {
	return "CASE " + column +
		" WHEN 'r' THEN 'RESTRICT'" +
		" WHEN 'c' THEN 'CASCADE'" +
		" WHEN 'n' THEN 'SET NULL'" +
		" WHEN 'd' THEN 'SET DEFAULT'" +
		" ELSE 'NO ACTION' END"
}

// getForeignKeys reads the foreign keys declared on tableName. Constraint
// names are only unique per table, so the lookup goes through pg_constraint
// keyed by the owning relation.
func (p *Introspector) getForeignKeys(ctx context.Context, tableName string) (map[string]schema.ExistingForeignKey, error) {
	query := `
		SELECT
			con.conname,
			a.attname,
			ref.relname AS referenced_table,
			ra.attname AS referenced_column,
			` + fkRule("con.confupdtype") + `,
			` + fkRule("con.confdeltype") + `
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_class ref ON ref.oid = con.confrelid
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = con.confkey[1]
		WHERE con.contype = 'f'
			AND n.nspname = $1
			AND c.relname = $2
		ORDER BY a.attnum
	`
	rows, err := p.q.QueryContext(ctx, query, p.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	foreignKeys := make(map[string]schema.ExistingForeignKey)
	for rows.Next() {
		var fk schema.ExistingForeignKey

		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		foreignKeys[fk.Column] = fk
	}

	return foreignKeys, rows.Err()
}

// getTracking reads whether the tracking function and trigger exist and the
// tracked columns recorded in the function comment
func (p *Introspector) getTracking(ctx context.Context, tableName string) (schema.Tracking, error) {
	query := `
		SELECT
			EXISTS (
				SELECT 1 FROM pg_proc p
				JOIN pg_namespace n ON n.oid = p.pronamespace
				WHERE n.nspname = $1 AND p.proname = $2
			),
			EXISTS (
				SELECT 1 FROM pg_trigger t
				JOIN pg_class c ON c.oid = t.tgrelid
				JOIN pg_namespace n ON n.oid = c.relnamespace
				WHERE n.nspname = $1 AND c.relname = $3 AND t.tgname = $4 AND NOT t.tgisinternal
			),
			(
				SELECT obj_description(p.oid, 'pg_proc') FROM pg_proc p
				JOIN pg_namespace n ON n.oid = p.pronamespace
				WHERE n.nspname = $1 AND p.proname = $2
				LIMIT 1
			)
	`
	var tracking schema.Tracking
	var comment sql.NullString
	err := p.q.QueryRowContext(ctx, query,
		p.schema, generator.FunctionName(tableName), tableName, generator.TriggerName(tableName),
	).Scan(&tracking.FunctionExists, &tracking.TriggerExists, &comment)
	if err != nil {
		return schema.Tracking{}, fmt.Errorf("failed to get tracking state: %w", err)
	}

	if comment.Valid && comment.String != "" {
		for _, col := range strings.Split(comment.String, ",") {
			if col = strings.TrimSpace(col); col != "" {
				tracking.Columns = append(tracking.Columns, col)
			}
		}
	}
	return tracking, nil
}

// ReadLog returns the most recent structural log entries, newest first. A
// limit of zero or less returns every entry.
func (p *Introspector) ReadLog(ctx context.Context, limit int) ([]schema.LogEntry, error) {
	query := fmt.Sprintf("SELECT id, action, description, timestamp FROM %s ORDER BY id DESC", schema.MigrationLogTable)
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration log: %w", err)
	}
	defer rows.Close()

	var entries []schema.LogEntry
	for rows.Next() {
		var entry schema.LogEntry
		var action string
		var description sql.NullString
		var ts sql.NullTime
		if err := rows.Scan(&entry.ID, &action, &description, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.Action = schema.Action(action)
		entry.Description = description.String
		entry.Timestamp = ts.Time
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
