package schema

import "strings"

// Common column types
const (
	TypeSerial    = "SERIAL"
	TypeInteger   = "INTEGER"
	TypeBigInt    = "BIGINT"
	TypeReal      = "REAL"
	TypeBoolean   = "BOOLEAN"
	TypeText      = "TEXT"
	TypeVarchar   = "CHARACTER VARYING"
	TypeDate      = "DATE"
	TypeTimestamp = "TIMESTAMP WITHOUT TIME ZONE"
)

// kindTypes maps declarative model kinds to column types
var kindTypes = map[string]string{
	"str":      TypeVarchar,
	"string":   TypeVarchar,
	"int":      TypeInteger,
	"float":    TypeReal,
	"bool":     TypeBoolean,
	"date":     TypeDate,
	"datetime": TypeTimestamp,
}

// TypeForKind maps a model kind (str, int, float, bool, date, datetime) to a
// column type. Unknown kinds map to TEXT.
func TypeForKind(kind string) string {
	if t, ok := kindTypes[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return t
	}
	return TypeText
}

// ColumnBuilder builds a FieldSchema with chained calls:
//
//	schema.Column("email", schema.TypeVarchar).NotNull().Unique().Field()
type ColumnBuilder struct {
	f FieldSchema
}

// Column starts a field definition
func Column(name, sqlType string) *ColumnBuilder {
	return &ColumnBuilder{f: FieldSchema{Name: name, SQLType: sqlType}}
}

func (b *ColumnBuilder) NotNull() *ColumnBuilder {
	b.f.Required = true
	return b
}

func (b *ColumnBuilder) Unique() *ColumnBuilder {
	b.f.Unique = true
	return b
}

func (b *ColumnBuilder) PrimaryKey() *ColumnBuilder {
	b.f.PrimaryKey = true
	return b
}

func (b *ColumnBuilder) Default(v any) *ColumnBuilder {
	b.f.Default = v
	return b
}

// References sets the foreign key target ("table.column", "table(column)" or "table")
func (b *ColumnBuilder) References(target string) *ColumnBuilder {
	b.f.ForeignKey = target
	return b
}

func (b *ColumnBuilder) OnDelete(action string) *ColumnBuilder {
	b.f.OnDelete = action
	return b
}

func (b *ColumnBuilder) OnUpdate(action string) *ColumnBuilder {
	b.f.OnUpdate = action
	return b
}

// Tracked enables data change tracking for the column
func (b *ColumnBuilder) Tracked() *ColumnBuilder {
	b.f.TrackChanges = true
	return b
}

// Field returns the built schema
func (b *ColumnBuilder) Field() FieldSchema {
	return b.f
}
