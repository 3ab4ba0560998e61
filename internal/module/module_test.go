package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/dbsync/internal/schema"
)

const inventoryYAML = `
database:
  type: postgresql
  name: inventory
  user: app
extensions: [citext]
tables:
  - name: categories
    columns:
      - name: label
        kind: str
        required: true
        unique: true
  - name: products
    columns:
      - name: name
        type: CHARACTER VARYING(120)
        required: true
        track_changes: true
      - name: price
        kind: float
        default: 0
      - name: category_id
        kind: int
        foreign_key: categories.id
        on_delete: SET NULL
  - name: tags
    columns:
      - name: code
        type: TEXT
        primary_key: true
`

func writeModule(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "inventory", inventoryYAML)

	m, err := LoadFile(filepath.Join(root, "inventory", "inventory.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "inventory", m.Name)
	assert.Equal(t, "postgresql", m.Database.Type)
	assert.Equal(t, "inventory", m.Database.Database)
	assert.Equal(t, "app", m.Database.User)
	assert.Equal(t, []string{"citext"}, m.Extensions)
	require.Len(t, m.Tables, 3)

	categories := m.Tables[0]
	assert.Equal(t, []string{"id", "label"}, fieldNames(categories))
	assert.Equal(t, schema.IDField(), categories.Fields[0])
	label, _ := categories.Field("label")
	assert.Equal(t, schema.TypeVarchar, label.SQLType)
	assert.True(t, label.Required)
	assert.True(t, label.Unique)

	products, ok := m.Table("products")
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, products.TrackedColumns())
	price, _ := products.Field("price")
	assert.Equal(t, schema.TypeReal, price.SQLType)
	assert.Equal(t, 0, price.Default)
	category, _ := products.Field("category_id")
	assert.Equal(t, schema.TypeInteger, category.SQLType)
	assert.Equal(t, "categories.id", category.ForeignKey)
	assert.Equal(t, "SET NULL", category.OnDelete)

	tags, _ := m.Table("tags")
	assert.Equal(t, []string{"code"}, fieldNames(tags))
}

func fieldNames(t *schema.Table) []string {
	var names []string
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestLoadFileInvalid(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "broken", `
tables:
  - name: things
    columns:
      - name: "bad name"
        type: TEXT
`)

	_, err := LoadFile(filepath.Join(root, "broken", "broken.yaml"))
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)

	writeModule(t, root, "dupes", `
tables:
  - name: things
    columns: [{name: a, type: TEXT}]
  - name: things
    columns: [{name: b, type: TEXT}]
`)
	_, err = LoadFile(filepath.Join(root, "dupes", "dupes.yaml"))
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)

	writeModule(t, root, "garbage", "tables: [")
	_, err = LoadFile(filepath.Join(root, "garbage", "garbage.yaml"))
	assert.Error(t, err)
}

func TestDirModules(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "inventory", inventoryYAML)
	writeModule(t, root, "billing", `
database:
  type: postgres
  name: billing
tables:
  - name: invoices
    columns:
      - name: total
        kind: float
`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "static"), 0o755))

	modules, err := Dir{Path: root}.Modules()
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, "billing", modules[0].Name)
	assert.Equal(t, "inventory", modules[1].Name)

	modules, err = Dir{Path: root, Only: "inventory"}.Modules()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	_, err = Dir{Path: root, Only: "missing"}.Modules()
	assert.Error(t, err)

	_, err = Dir{Path: filepath.Join(root, "nope")}.Modules()
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	var r Registry
	r.Register(&Module{
		Name:   "example",
		Tables: []*schema.Table{schema.NewModelTable("example", schema.Column("name", schema.TypeText).Field())},
	})

	modules, err := r.Modules()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	r.Register(&Module{Name: "bad", Tables: []*schema.Table{schema.NewTable("bad")}})
	_, err = r.Modules()
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
}
