package schema

import (
	"strings"
	"time"
)

// Action tags a structural change in the migration log
type Action string

const (
	ActionCreateTable         Action = "CREATE_TABLE"
	ActionAddColumn           Action = "ADD_COLUMN"
	ActionAlterColumn         Action = "ALTER_COLUMN"
	ActionAddConstraint       Action = "ADD_CONSTRAINT"
	ActionDropConstraint      Action = "DROP_CONSTRAINT"
	ActionAddForeignKey       Action = "ADD_FOREIGN_KEY"
	ActionRemoveForeignKey    Action = "REMOVE_FOREIGN_KEY"
	ActionDropColumn          Action = "DROP_COLUMN"
	ActionEnableDataTracking  Action = "ENABLE_DATA_TRACKING"
	ActionDisableDataTracking Action = "DISABLE_DATA_TRACKING"
	ActionEnableExtension     Action = "ENABLE_EXTENSION"
)

// Operation is one logged structural change. It may need more than one
// statement, e.g. dropping a stale constraint before re-adding it.
type Operation struct {
	Action      Action   `json:"action"`
	Table       string   `json:"table,omitempty"`
	Statements  []string `json:"statements"`
	Description string   `json:"description"`
}

// SQL joins the operation statements into a single script
func (o Operation) SQL() string {
	return strings.Join(o.Statements, "\n")
}

// LogEntry is one row of the structural migration log
type LogEntry struct {
	ID          int64     `json:"id"`
	Action      Action    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChangeType tags a row of the data change log
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Audit table names
const (
	MigrationLogTable     = "migration_logs"
	MigrationLogDataTable = "migration_logs_data"
)
