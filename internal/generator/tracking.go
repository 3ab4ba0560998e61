package generator

import (
	"fmt"
	"strings"

	"github.com/koba/dbsync/internal/schema"
)

// TriggerName is the name of the change tracking trigger on table
func TriggerName(table string) string {
	return table + "_track_changes"
}

// FunctionName is the name of the trigger function mirroring changes on table
func FunctionName(table string) string {
	return table + "_track_function"
}

// ChangeTracker generates the trigger and function pair that copies row
// changes of tracked columns into the data change log.
type ChangeTracker struct{}

// NewChangeTracker creates a new change tracker
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{}
}

// Sync returns the operation that makes tracking on table match columns:
// the trigger and function are recreated for a non-empty set and dropped for
// an empty one.
func (c *ChangeTracker) Sync(table string, columns []string) schema.Operation {
	if len(columns) == 0 {
		return c.Disable(table)
	}
	return c.Enable(table, columns)
}

// Enable drops any previous trigger and function and recreates both for columns
func (c *ChangeTracker) Enable(table string, columns []string) schema.Operation {
	fn := FunctionName(table)
	trigger := TriggerName(table)

	return schema.Operation{
		Action: schema.ActionEnableDataTracking,
		Table:  table,
		Statements: []string{
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", trigger, table),
			fmt.Sprintf("DROP FUNCTION IF EXISTS %s() CASCADE;", fn),
			c.functionBody(table, columns),
			// the tracked set is kept on the function so it can be read back
			fmt.Sprintf("COMMENT ON FUNCTION %s() IS %s;", fn, QuoteLiteral(strings.Join(columns, ","))),
			fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s();", trigger, table, fn),
		},
		Description: fmt.Sprintf("Data change tracking enabled in '%s' for %s", table, strings.Join(columns, ", ")),
	}
}

// Disable drops the trigger and function
func (c *ChangeTracker) Disable(table string) schema.Operation {
	return schema.Operation{
		Action: schema.ActionDisableDataTracking,
		Table:  table,
		Statements: []string{
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", TriggerName(table), table),
			fmt.Sprintf("DROP FUNCTION IF EXISTS %s() CASCADE;", FunctionName(table)),
		},
		Description: fmt.Sprintf("Data tracking removed in '%s'", table),
	}
}

func (c *ChangeTracker) functionBody(table string, columns []string) string {
	var inserts, updates, deletes []string
	for _, col := range columns {
		inserts = append(inserts, logRow(table, col, "NULL", "NEW."+col+"::TEXT", schema.ChangeInsert))
		updates = append(updates, fmt.Sprintf("        IF OLD.%s IS DISTINCT FROM NEW.%s THEN\n    %s\n        END IF;",
			col, col, logRow(table, col, "OLD."+col+"::TEXT", "NEW."+col+"::TEXT", schema.ChangeUpdate)))
		deletes = append(deletes, logRow(table, col, "OLD."+col+"::TEXT", "NULL", schema.ChangeDelete))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE OR REPLACE FUNCTION %s() RETURNS TRIGGER AS $$\nBEGIN\n", FunctionName(table))
	sb.WriteString("    IF TG_OP = 'INSERT' THEN\n")
	sb.WriteString(strings.Join(inserts, "\n") + "\n")
	sb.WriteString("        RETURN NEW;\n")
	sb.WriteString("    ELSIF TG_OP = 'UPDATE' THEN\n")
	sb.WriteString(strings.Join(updates, "\n") + "\n")
	sb.WriteString("        RETURN NEW;\n")
	sb.WriteString("    ELSIF TG_OP = 'DELETE' THEN\n")
	sb.WriteString(strings.Join(deletes, "\n") + "\n")
	sb.WriteString("        RETURN OLD;\n")
	sb.WriteString("    END IF;\n    RETURN NULL;\nEND;\n$$ LANGUAGE plpgsql;")
	return sb.String()
}

func logRow(table, column, oldValue, newValue string, change schema.ChangeType) string {
	return fmt.Sprintf("        INSERT INTO %s (table_name, column_name, old_value, new_value, change_type) VALUES (%s, %s, %s, %s, '%s');",
		schema.MigrationLogDataTable, QuoteLiteral(table), QuoteLiteral(column), oldValue, newValue, change)
}
