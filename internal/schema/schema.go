package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSchema is returned when a desired table schema cannot be turned into DDL
var ErrInvalidSchema = errors.New("invalid schema")

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsIdentifier reports whether s can be used unquoted as a table or column name
func IsIdentifier(s string) bool {
	return s != "" && len(s) <= 63 && identifierRe.MatchString(s)
}

// FieldSchema describes the desired state of one column
type FieldSchema struct {
	Name         string `json:"name" yaml:"name"`
	SQLType      string `json:"type" yaml:"type"`
	Required     bool   `json:"required,omitempty" yaml:"required"`
	Unique       bool   `json:"unique,omitempty" yaml:"unique"`
	PrimaryKey   bool   `json:"primary_key,omitempty" yaml:"primary_key"`
	Default      any    `json:"default,omitempty" yaml:"default"`
	ForeignKey   string `json:"foreign_key,omitempty" yaml:"foreign_key"` // "table.column", "table(column)" or "table"
	OnDelete     string `json:"on_delete,omitempty" yaml:"on_delete"`     // CASCADE, SET NULL, RESTRICT, NO ACTION, SET DEFAULT
	OnUpdate     string `json:"on_update,omitempty" yaml:"on_update"`
	TrackChanges bool   `json:"track_changes,omitempty" yaml:"track_changes"`
}

// HasDefault reports whether the field declares a non-null default
func (f FieldSchema) HasDefault() bool {
	return f.Default != nil
}

// Reference returns the parsed foreign key target, if any
func (f FieldSchema) Reference() (Reference, bool) {
	if f.ForeignKey == "" {
		return Reference{}, false
	}
	return ParseReference(f.ForeignKey), true
}

// Table is the desired schema of one table. Field order drives DDL column order.
type Table struct {
	Name   string        `json:"name" yaml:"name"`
	Fields []FieldSchema `json:"columns" yaml:"columns"`
}

// NewTable creates a table from an ordered list of fields
func NewTable(name string, fields ...FieldSchema) *Table {
	return &Table{Name: name, Fields: fields}
}

// NewModelTable creates a table whose first column is the implicit
// auto-incrementing id primary key.
func NewModelTable(name string, fields ...FieldSchema) *Table {
	t := &Table{Name: name, Fields: []FieldSchema{IDField()}}
	t.Fields = append(t.Fields, fields...)
	return t
}

// IDField is the default auto-incrementing primary key column
func IDField() FieldSchema {
	return Column("id", TypeSerial).PrimaryKey().NotNull().Field()
}

// Field looks up a field by column name
func (t *Table) Field(name string) (FieldSchema, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// HasField reports whether the table declares the column
func (t *Table) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// HasPrimaryKey reports whether any field is flagged as primary key
func (t *Table) HasPrimaryKey() bool {
	for _, f := range t.Fields {
		if f.PrimaryKey {
			return true
		}
	}
	return false
}

// TrackedColumns returns the columns with change tracking enabled, in field order
func (t *Table) TrackedColumns() []string {
	var cols []string
	for _, f := range t.Fields {
		if f.TrackChanges {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Validate checks names so they can be embedded in DDL text
func (t *Table) Validate() error {
	if !IsIdentifier(t.Name) {
		return fmt.Errorf("%w: table name %q is not a valid identifier", ErrInvalidSchema, t.Name)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidSchema, t.Name)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if !IsIdentifier(f.Name) {
			return fmt.Errorf("%w: column name %q in %s is not a valid identifier", ErrInvalidSchema, f.Name, t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate column %s in %s", ErrInvalidSchema, f.Name, t.Name)
		}
		seen[f.Name] = true

		if strings.TrimSpace(f.SQLType) == "" {
			return fmt.Errorf("%w: column %s.%s has no type", ErrInvalidSchema, t.Name, f.Name)
		}
		if f.ForeignKey != "" {
			ref := ParseReference(f.ForeignKey)
			if !IsIdentifier(ref.Table) || (ref.Column != "" && !IsIdentifier(ref.Column)) {
				return fmt.Errorf("%w: foreign key target %q of %s.%s", ErrInvalidSchema, f.ForeignKey, t.Name, f.Name)
			}
		}
		for _, action := range []string{f.OnDelete, f.OnUpdate} {
			if action != "" && !IsReferentialAction(action) {
				return fmt.Errorf("%w: unknown referential action %q on %s.%s", ErrInvalidSchema, action, t.Name, f.Name)
			}
		}
	}

	return nil
}

// Reference is a parsed foreign key target
type Reference struct {
	Table  string
	Column string
}

// ParseReference accepts "table.column", "table(column)" and "table"
func ParseReference(target string) Reference {
	target = strings.TrimSpace(target)
	if i := strings.Index(target, "("); i > 0 && strings.HasSuffix(target, ")") {
		return Reference{
			Table:  strings.TrimSpace(target[:i]),
			Column: strings.TrimSpace(target[i+1 : len(target)-1]),
		}
	}
	if table, column, ok := strings.Cut(target, "."); ok {
		return Reference{Table: table, Column: column}
	}
	return Reference{Table: target}
}

// String renders the reference as used in a REFERENCES clause
func (r Reference) String() string {
	if r.Column == "" {
		return r.Table
	}
	return fmt.Sprintf("%s(%s)", r.Table, r.Column)
}

var referentialActions = map[string]bool{
	"CASCADE":     true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"RESTRICT":    true,
	"NO ACTION":   true,
}

// IsReferentialAction reports whether a is a valid ON DELETE / ON UPDATE action
func IsReferentialAction(a string) bool {
	return referentialActions[strings.ToUpper(strings.TrimSpace(a))]
}

// ExistingColumn is a column as read from the database catalog
type ExistingColumn struct {
	Name       string  `json:"name"`
	SQLType    string  `json:"type"` // upper-cased
	Required   bool    `json:"required"`
	Unique     bool    `json:"unique"`
	PrimaryKey bool    `json:"primary_key"`
	Default    *string `json:"default,omitempty"` // raw column_default expression
	Position   int     `json:"position"`
}

// ExistingForeignKey is a foreign key constraint as read from the database catalog
type ExistingForeignKey struct {
	Name             string `json:"name"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	OnDelete         string `json:"on_delete"`
	OnUpdate         string `json:"on_update"`
}

// Tracking describes the change-tracking trigger of a live table
type Tracking struct {
	FunctionExists bool     `json:"function_exists"`
	TriggerExists  bool     `json:"trigger_exists"`
	Columns        []string `json:"columns,omitempty"`
}

// Enabled reports whether any part of the trigger/function pair is present
func (t Tracking) Enabled() bool {
	return t.FunctionExists || t.TriggerExists
}

// ExistingTable is a read-only snapshot of a live table, rebuilt for every diff
type ExistingTable struct {
	Name        string                        `json:"name"`
	Columns     []ExistingColumn              `json:"columns"`
	ForeignKeys map[string]ExistingForeignKey `json:"foreign_keys"` // keyed by column
	Tracking    Tracking                      `json:"tracking"`
}

// Column looks up an existing column by name
func (t *ExistingTable) Column(name string) (ExistingColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ExistingColumn{}, false
}
