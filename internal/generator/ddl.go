package generator

import (
	"fmt"
	"strings"

	"github.com/koba/dbsync/internal/schema"
)

// DDLGenerator generates DDL statements for desired table schemas. It holds
// no state and is safe for concurrent use.
type DDLGenerator struct{}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{}
}

// ForeignKeyName is the constraint name of the foreign key on table.column
func ForeignKeyName(table, column string) string {
	return fmt.Sprintf("%s_%s_fk", table, column)
}

// UniqueConstraintName is the constraint name of the unique constraint on column
func UniqueConstraintName(column string) string {
	return column + "_unique"
}

// GenerateCreateTable returns the CREATE TABLE statement for t and the
// ALTER TABLE statements adding its foreign keys, in field order. Foreign
// keys are returned separately so they can run once every referenced table
// exists.
func (g *DDLGenerator) GenerateCreateTable(t *schema.Table) (string, []string) {
	var parts []string
	var primaryKeys []string
	var constraints []string
	var foreignKeys []string

	for _, f := range t.Fields {
		parts = append(parts, g.columnDefinition(f))

		if f.PrimaryKey {
			if !schema.HasInlinePrimaryKey(f.SQLType) {
				primaryKeys = append(primaryKeys, f.Name)
			}
		} else if f.Unique {
			constraints = append(constraints, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", UniqueConstraintName(f.Name), f.Name))
		}

		if f.ForeignKey != "" {
			foreignKeys = append(foreignKeys, g.AddForeignKey(t.Name, f))
		}
	}

	if len(primaryKeys) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	parts = append(parts, constraints...)

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  "))
	return stmt, foreignKeys
}

func (g *DDLGenerator) columnDefinition(f schema.FieldSchema) string {
	def := f.Name + " " + f.SQLType

	if f.PrimaryKey {
		return def
	}
	if f.Required {
		def += " NOT NULL"
	}
	if f.HasDefault() {
		def += " DEFAULT " + defaultLiteral(f.Default, f.SQLType)
	}
	return def
}

// AddColumn adds the bare typed column. Constraints are added by separate
// statements.
func (g *DDLGenerator) AddColumn(table string, f schema.FieldSchema) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s;", table, f.Name, f.SQLType)
}

// DropColumn drops the column and anything depending on it
func (g *DDLGenerator) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s CASCADE;", table, column)
}

// AlterColumnType changes the column type, converting existing values with a cast
func (g *DDLGenerator) AlterColumnType(table, column, sqlType string) string {
	cast := schema.CastType(sqlType)
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;", table, column, cast, column, cast)
}

func (g *DDLGenerator) SetNotNull(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;", table, column)
}

func (g *DDLGenerator) DropNotNull(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", table, column)
}

// SetDefault sets the column default, cast to castType
func (g *DDLGenerator) SetDefault(table, column string, value any, castType string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;", table, column, defaultLiteral(value, castType))
}

func (g *DDLGenerator) DropDefault(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT;", table, column)
}

func (g *DDLGenerator) AddUnique(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);", table, UniqueConstraintName(column), column)
}

func (g *DDLGenerator) DropUnique(table, column string) string {
	return g.DropConstraint(table, UniqueConstraintName(column))
}

// DropConstraint drops a named constraint if it exists
func (g *DDLGenerator) DropConstraint(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;", table, name)
}

func (g *DDLGenerator) AddPrimaryKey(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);", table, column)
}

// AddForeignKey adds the foreign key declared by f. ON DELETE and ON UPDATE
// are only emitted when the field sets them.
func (g *DDLGenerator) AddForeignKey(table string, f schema.FieldSchema) string {
	ref, _ := f.Reference()
	fkDef := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s",
		table,
		ForeignKeyName(table, f.Name),
		f.Name,
		ref,
	)
	if f.OnDelete != "" {
		fkDef += fmt.Sprintf(" ON DELETE %s", strings.ToUpper(f.OnDelete))
	}
	if f.OnUpdate != "" {
		fkDef += fmt.Sprintf(" ON UPDATE %s", strings.ToUpper(f.OnUpdate))
	}
	return fkDef + ";"
}
