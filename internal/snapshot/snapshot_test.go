package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/dbsync/internal/schema"
)

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "inventory.db")

	seq := "nextval('products_id_seq'::regclass)"
	products := &schema.ExistingTable{
		Name: "products",
		Columns: []schema.ExistingColumn{
			{Name: "id", SQLType: "INTEGER", Required: true, PrimaryKey: true, Default: &seq, Position: 1},
			{Name: "name", SQLType: "TEXT", Required: true, Position: 2},
			{Name: "category_id", SQLType: "INTEGER", Position: 3},
		},
		ForeignKeys: map[string]schema.ExistingForeignKey{
			"category_id": {
				Name:             "products_category_id_fk",
				Column:           "category_id",
				ReferencedTable:  "categories",
				ReferencedColumn: "id",
				OnDelete:         "CASCADE",
				OnUpdate:         "NO ACTION",
			},
		},
		Tracking: schema.Tracking{FunctionExists: true, TriggerExists: true, Columns: []string{"name"}},
	}

	snap := New("inventory", "postgres://postgres@localhost:5432/inventory")
	snap.Tables["products"] = products
	snap.Operations = []schema.Operation{{
		Action:      schema.ActionAddColumn,
		Table:       "products",
		Statements:  []string{"ALTER TABLE products ADD COLUMN IF NOT EXISTS sku TEXT;"},
		Description: "Column 'sku' added to table 'products'",
	}}
	snap.SetUndeclared([]string{"legacy_orders", "tmp_import"})

	require.NoError(t, Save(ctx, snap, path))

	loaded, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "inventory", loaded.Module())
	assert.Equal(t, snap.Metadata, loaded.Metadata)
	assert.Equal(t, products, loaded.Tables["products"])
	assert.Equal(t, snap.Operations, loaded.Operations)
	assert.Equal(t, []string{"legacy_orders", "tmp_import"}, loaded.Undeclared())
}

func TestSaveReplacesExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "billing.db")

	first := New("billing", "")
	first.Tables["invoices"] = &schema.ExistingTable{Name: "invoices"}
	require.NoError(t, Save(ctx, first, path))

	second := New("billing", "")
	second.Tables["payments"] = &schema.ExistingTable{Name: "payments"}
	require.NoError(t, Save(ctx, second, path))

	loaded, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Len(t, loaded.Tables, 1)
	assert.Contains(t, loaded.Tables, "payments")
	assert.Empty(t, loaded.Operations)
	assert.Empty(t, loaded.Undeclared())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadNotASnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte("this is plainly not a sqlite database file"), 0o644))

	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}
