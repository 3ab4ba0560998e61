package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/dbsync/internal/schema"
)

func exampleTable() *schema.Table {
	return schema.NewModelTable("example",
		schema.Column("name", schema.TypeVarchar).NotNull().Field(),
		schema.Column("email", schema.TypeVarchar).Unique().Field(),
		schema.Column("status", schema.TypeVarchar).Default("draft").Field(),
		schema.Column("category_id", schema.TypeInteger).References("categories.id").OnDelete("set null").Field(),
		schema.Column("owner_id", schema.TypeInteger).References("users").Field(),
	)
}

func TestGenerateCreateTable(t *testing.T) {
	g := NewDDLGenerator()

	stmt, fks := g.GenerateCreateTable(exampleTable())

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS example (
  id SERIAL,
  name CHARACTER VARYING NOT NULL,
  email CHARACTER VARYING,
  status CHARACTER VARYING DEFAULT 'draft'::CHARACTER VARYING,
  category_id INTEGER,
  owner_id INTEGER,
  PRIMARY KEY (id),
  CONSTRAINT email_unique UNIQUE (email)
);`, stmt)

	require.Len(t, fks, 2)
	assert.Equal(t, "ALTER TABLE example ADD CONSTRAINT example_category_id_fk FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL;", fks[0])
	assert.Equal(t, "ALTER TABLE example ADD CONSTRAINT example_owner_id_fk FOREIGN KEY (owner_id) REFERENCES users;", fks[1])
}

func TestGenerateCreateTableIsDeterministic(t *testing.T) {
	g := NewDDLGenerator()

	first, firstFKs := g.GenerateCreateTable(exampleTable())
	second, secondFKs := g.GenerateCreateTable(exampleTable())
	assert.Equal(t, first, second)
	assert.Equal(t, firstFKs, secondFKs)
}

func TestGenerateCreateTableInlinePrimaryKey(t *testing.T) {
	g := NewDDLGenerator()

	table := schema.NewTable("tags",
		schema.Column("id", "SERIAL PRIMARY KEY").PrimaryKey().Field(),
		schema.Column("label", schema.TypeText).NotNull().Default("it's").Field(),
	)
	stmt, fks := g.GenerateCreateTable(table)

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS tags (
  id SERIAL PRIMARY KEY,
  label TEXT NOT NULL DEFAULT 'it''s'::TEXT
);`, stmt)
	assert.Empty(t, fks)
}

func TestAlterStatements(t *testing.T) {
	g := NewDDLGenerator()
	field := schema.Column("parent_id", schema.TypeInteger).
		References("example(id)").
		OnDelete("CASCADE").
		OnUpdate("NO ACTION").
		Field()

	tests := []struct {
		got  string
		want string
	}{
		{g.AddColumn("t", field), "ALTER TABLE t ADD COLUMN IF NOT EXISTS parent_id INTEGER;"},
		{g.DropColumn("t", "old"), "ALTER TABLE t DROP COLUMN IF EXISTS old CASCADE;"},
		{g.AlterColumnType("t", "age", "bigint"), "ALTER TABLE t ALTER COLUMN age TYPE BIGINT USING age::BIGINT;"},
		{g.AlterColumnType("t", "id", "SERIAL"), "ALTER TABLE t ALTER COLUMN id TYPE INTEGER USING id::INTEGER;"},
		{g.SetNotNull("t", "name"), "ALTER TABLE t ALTER COLUMN name SET NOT NULL;"},
		{g.DropNotNull("t", "name"), "ALTER TABLE t ALTER COLUMN name DROP NOT NULL;"},
		{g.SetDefault("t", "count", 0, "INTEGER"), "ALTER TABLE t ALTER COLUMN count SET DEFAULT '0'::INTEGER;"},
		{g.DropDefault("t", "count"), "ALTER TABLE t ALTER COLUMN count DROP DEFAULT;"},
		{g.AddUnique("t", "email"), "ALTER TABLE t ADD CONSTRAINT email_unique UNIQUE (email);"},
		{g.DropUnique("t", "email"), "ALTER TABLE t DROP CONSTRAINT IF EXISTS email_unique;"},
		{g.AddPrimaryKey("t", "id"), "ALTER TABLE t ADD PRIMARY KEY (id);"},
		{g.AddForeignKey("t", field), "ALTER TABLE t ADD CONSTRAINT t_parent_id_fk FOREIGN KEY (parent_id) REFERENCES example(id) ON DELETE CASCADE ON UPDATE NO ACTION;"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", QuoteLiteral("plain"))
	assert.Equal(t, "'O''Brien'", QuoteLiteral("O'Brien"))
	assert.Equal(t, "NULL", defaultLiteral(nil, "TEXT"))
	assert.Equal(t, "'true'::BOOLEAN", defaultLiteral(true, schema.TypeBoolean))
}

func TestAuditTables(t *testing.T) {
	stmts := AuditTables()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS migration_logs (")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS migration_logs_data (")
	assert.Contains(t, stmts[1], "change_type VARCHAR(10)")

	assert.Equal(t, "INSERT INTO migration_logs (action, description) VALUES ($1, $2)", InsertLogEntry())

	op := EnableExtension("citext")
	assert.Equal(t, schema.ActionEnableExtension, op.Action)
	assert.Equal(t, []string{"CREATE EXTENSION IF NOT EXISTS citext;"}, op.Statements)
}
