package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnBuilder(t *testing.T) {
	f := Column("category_id", TypeInteger).
		NotNull().
		References("categories.id").
		OnDelete("SET NULL").
		OnUpdate("CASCADE").
		Tracked().
		Field()

	assert.Equal(t, "category_id", f.Name)
	assert.Equal(t, "INTEGER", f.SQLType)
	assert.True(t, f.Required)
	assert.True(t, f.TrackChanges)
	assert.False(t, f.Unique)

	ref, ok := f.Reference()
	require.True(t, ok)
	assert.Equal(t, Reference{Table: "categories", Column: "id"}, ref)
}

func TestNewModelTable(t *testing.T) {
	table := NewModelTable("example",
		Column("name", TypeVarchar).NotNull().Field(),
		Column("notes", TypeText).Tracked().Field(),
		Column("status", TypeVarchar).Default("draft").Tracked().Field(),
	)

	require.Len(t, table.Fields, 4)
	assert.Equal(t, "id", table.Fields[0].Name)
	assert.True(t, table.HasPrimaryKey())
	assert.True(t, table.HasField("notes"))
	assert.False(t, table.HasField("missing"))
	assert.Equal(t, []string{"notes", "status"}, table.TrackedColumns())
	assert.NoError(t, table.Validate())
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
	}{
		{"bad table name", NewTable("drop table;", Column("a", TypeText).Field())},
		{"no columns", NewTable("t")},
		{"bad column name", NewTable("t", Column("a b", TypeText).Field())},
		{"duplicate column", NewTable("t", Column("a", TypeText).Field(), Column("a", TypeText).Field())},
		{"missing type", NewTable("t", Column("a", " ").Field())},
		{"bad reference", NewTable("t", Column("a", TypeInteger).References("x;y").Field())},
		{"bad action", NewTable("t", Column("a", TypeInteger).References("x").OnDelete("EXPLODE").Field())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.table.Validate(), ErrInvalidSchema)
		})
	}
}

func TestParseReference(t *testing.T) {
	assert.Equal(t, Reference{Table: "categories", Column: "id"}, ParseReference("categories.id"))
	assert.Equal(t, Reference{Table: "example", Column: "id"}, ParseReference("example(id)"))
	assert.Equal(t, Reference{Table: "users"}, ParseReference("users"))
	assert.Equal(t, "example(id)", ParseReference("example.id").String())
	assert.Equal(t, "users", ParseReference("users").String())
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"SERIAL":                      "INTEGER",
		"serial primary key":          "INTEGER",
		"int":                         "INTEGER",
		"varchar(255)":                "CHARACTER VARYING(255)",
		"character varying":           "CHARACTER VARYING",
		"timestamp":                   "TIMESTAMP WITHOUT TIME ZONE",
		"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP WITHOUT TIME ZONE",
		"numeric(10, 2)":              "NUMERIC(10,2)",
		"numeric(10)":                 "NUMERIC(10,0)",
		"decimal(12)":                 "NUMERIC(12,0)",
		"numeric":                     "NUMERIC",
		"timestamp(3)":                "TIMESTAMP(3) WITHOUT TIME ZONE",
		"timestamp(6)":                "TIMESTAMP WITHOUT TIME ZONE",
		"TIMESTAMP(3) WITH TIME ZONE": "TIMESTAMP(3) WITH TIME ZONE",
		"timestamptz(0)":              "TIMESTAMP(0) WITH TIME ZONE",
		"time(2)":                     "TIME(2) WITHOUT TIME ZONE",
		"bool":                        "BOOLEAN",
		"text":                        "TEXT",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeType(in), in)
	}

	assert.True(t, SameType("SERIAL", "INTEGER"))
	assert.True(t, SameType("NUMERIC(10)", "NUMERIC(10,0)"))
	assert.True(t, SameType("TIMESTAMP(3)", "TIMESTAMP(3) WITHOUT TIME ZONE"))
	assert.False(t, SameType("TIMESTAMP(3)", "TIMESTAMP WITHOUT TIME ZONE"))
	assert.False(t, SameType("TEXT", "INTEGER"))
}

func TestFormatType(t *testing.T) {
	assert.Equal(t, "TIMESTAMP(3) WITHOUT TIME ZONE", FormatType("TIMESTAMP WITHOUT TIME ZONE", "(3)"))
	assert.Equal(t, "NUMERIC(10,2)", FormatType("NUMERIC", "(10,2)"))
	assert.Equal(t, "TEXT", FormatType("TEXT", ""))
	assert.Equal(t, "TIMESTAMP(3) WITH TIME ZONE", CastType("timestamp(3) with time zone"))
}

func TestInlinePrimaryKey(t *testing.T) {
	assert.True(t, HasInlinePrimaryKey("SERIAL PRIMARY KEY"))
	assert.False(t, HasInlinePrimaryKey("SERIAL"))

	assert.Equal(t, "INTEGER", CastType("SERIAL PRIMARY KEY"))
	assert.Equal(t, "CHARACTER VARYING(20)", CastType("character varying(20)"))
}

func TestFormatDefault(t *testing.T) {
	assert.Equal(t, "draft", FormatDefault("draft"))
	assert.Equal(t, "0", FormatDefault(0))
	assert.Equal(t, "true", FormatDefault(true))
	assert.Equal(t, "2.5", FormatDefault(2.5))
	assert.Equal(t, "2023-01-01", FormatDefault(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "", FormatDefault(nil))
}

func TestParseDefault(t *testing.T) {
	tests := []struct {
		expr string
		want string
		ok   bool
	}{
		{"'draft'::character varying", "draft", true},
		{"'it''s'::text", "it's", true},
		{"42", "42", true},
		{"'-1'::integer", "-1", true},
		{"true", "true", true},
		{"(-3.5)::real", "-3.5", true},
		{"nextval('example_id_seq'::regclass)", "", false},
		{"now()", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDefault(tt.expr)
		assert.Equal(t, tt.ok, ok, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	assert.True(t, IsSequenceDefault("nextval('example_id_seq'::regclass)"))
	assert.True(t, IsNullDefault("NULL::character varying"))
}

func TestSameDefault(t *testing.T) {
	tests := []struct {
		want    any
		live    string
		sqlType string
		same    bool
	}{
		{"2024-01-01", "'2024-01-01 00:00:00'::timestamp without time zone", "TIMESTAMP", true},
		{"2024-01-01", "'2024-01-02 00:00:00'::timestamp without time zone", "TIMESTAMP", false},
		{"2024-01-01 10:30:00", "'2024-01-01 10:30:00+00'::timestamp with time zone", "TIMESTAMPTZ", true},
		{"2024-01-01", "'2024-01-01'::date", TypeDate, true},
		{"08:00", "'08:00:00'::time without time zone", "TIME", true},
		{0, "0", "NUMERIC(10,2)", true},
		{0, "'0.00'::numeric", "NUMERIC(10,2)", true},
		{"1.50", "1.5", "NUMERIC(10,2)", true},
		{2.5, "'2.50'::numeric", "DECIMAL(10)", true},
		{1, "2", TypeInteger, false},
		{"draft", "'draft'::character varying", TypeVarchar, true},
		{"0", "'0.0'::character varying", TypeVarchar, false},
		{true, "true", TypeBoolean, true},
		{"2024-01-01", "now()", "TIMESTAMP", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.same, SameDefault(tt.want, tt.live, tt.sqlType), "%v vs %s", tt.want, tt.live)
	}
}

func TestTypeForKind(t *testing.T) {
	assert.Equal(t, TypeVarchar, TypeForKind("str"))
	assert.Equal(t, TypeInteger, TypeForKind("int"))
	assert.Equal(t, TypeTimestamp, TypeForKind("datetime"))
	assert.Equal(t, TypeText, TypeForKind("dict"))
}
