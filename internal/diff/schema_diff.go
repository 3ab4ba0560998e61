package diff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/koba/dbsync/internal/generator"
	"github.com/koba/dbsync/internal/schema"
)

// Engine computes the operations that bring a live table to its desired schema
type Engine struct {
	ddl     *generator.DDLGenerator
	tracker *generator.ChangeTracker
}

// NewEngine creates a new diff engine
func NewEngine() *Engine {
	return &Engine{
		ddl:     generator.NewDDLGenerator(),
		tracker: generator.NewChangeTracker(),
	}
}

// Create returns the operations for a table that does not exist yet. Foreign
// keys are returned separately in deferred so the caller can apply them once
// every referenced table exists.
func (e *Engine) Create(desired *schema.Table) (ops, deferred []schema.Operation) {
	stmt, fks := e.ddl.GenerateCreateTable(desired)
	ops = append(ops, schema.Operation{
		Action:      schema.ActionCreateTable,
		Table:       desired.Name,
		Statements:  []string{stmt},
		Description: fmt.Sprintf("Table '%s' created", desired.Name),
	})

	i := 0
	for _, f := range desired.Fields {
		if f.ForeignKey == "" {
			continue
		}
		deferred = append(deferred, schema.Operation{
			Action:      schema.ActionAddForeignKey,
			Table:       desired.Name,
			Statements:  []string{fks[i]},
			Description: foreignKeyDescription(desired.Name, f),
		})
		i++
	}

	if tracked := desired.TrackedColumns(); len(tracked) > 0 {
		ops = append(ops, e.tracker.Enable(desired.Name, tracked))
	}
	return ops, deferred
}

// Diff compares desired against the live table and returns the ordered
// operations to apply. It returns nothing when both already match.
func (e *Engine) Diff(desired *schema.Table, existing *schema.ExistingTable) []schema.Operation {
	d := &tableDiff{Engine: e, table: desired.Name}

	for _, f := range desired.Fields {
		col, ok := existing.Column(f.Name)
		if !ok {
			d.addColumn(f)
			continue
		}
		d.alterColumn(f, col, existing)
	}

	d.syncTracking(desired.TrackedColumns(), existing.Tracking)

	// obsolete columns
	for _, col := range existing.Columns {
		if !desired.HasField(col.Name) {
			d.emit(schema.ActionDropColumn, fmt.Sprintf("Obsolete column '%s' removed in '%s'", col.Name, d.table),
				e.ddl.DropColumn(d.table, col.Name))
		}
	}

	return d.ops
}

type tableDiff struct {
	*Engine
	table string
	ops   []schema.Operation
}

func (d *tableDiff) emit(action schema.Action, description string, statements ...string) {
	d.ops = append(d.ops, schema.Operation{
		Action:      action,
		Table:       d.table,
		Statements:  statements,
		Description: description,
	})
}

func (d *tableDiff) addColumn(f schema.FieldSchema) {
	d.emit(schema.ActionAddColumn, fmt.Sprintf("Column '%s' added to '%s'", f.Name, d.table),
		d.ddl.AddColumn(d.table, f))

	if f.Required && !f.PrimaryKey {
		d.emit(schema.ActionAlterColumn, fmt.Sprintf("Column '%s' in '%s' marked as NOT NULL", f.Name, d.table),
			d.ddl.SetNotNull(d.table, f.Name))
	}
	if f.Unique && !f.PrimaryKey {
		d.emit(schema.ActionAddConstraint, fmt.Sprintf("Column '%s' in '%s' is now UNIQUE", f.Name, d.table),
			d.ddl.AddUnique(d.table, f.Name))
	}
	if f.ForeignKey != "" {
		d.emit(schema.ActionAddForeignKey, foreignKeyDescription(d.table, f),
			d.ddl.AddForeignKey(d.table, f))
	}
	if f.HasDefault() && !f.PrimaryKey {
		d.emit(schema.ActionAlterColumn, defaultDescription(d.table, f.Name, f.Default, f.SQLType),
			d.ddl.SetDefault(d.table, f.Name, f.Default, f.SQLType))
	}
	if f.PrimaryKey && !schema.HasInlinePrimaryKey(f.SQLType) {
		d.emit(schema.ActionAddConstraint, fmt.Sprintf("Primary key '%s' added to '%s'", f.Name, d.table),
			d.ddl.AddPrimaryKey(d.table, f.Name))
	}
}

func (d *tableDiff) alterColumn(f schema.FieldSchema, col schema.ExistingColumn, existing *schema.ExistingTable) {
	castType := col.SQLType
	if !schema.SameType(f.SQLType, col.SQLType) {
		d.emit(schema.ActionAlterColumn, fmt.Sprintf("Column '%s' in '%s' is now of type %s", f.Name, d.table, schema.CastType(f.SQLType)),
			d.ddl.AlterColumnType(d.table, f.Name, f.SQLType))
		castType = f.SQLType
	}

	if !f.PrimaryKey {
		d.alterNullability(f, col)
		d.alterUnique(f, col)
		d.alterDefault(f, col, castType)
	}

	d.alterForeignKey(f, existing)
}

func (d *tableDiff) alterNullability(f schema.FieldSchema, col schema.ExistingColumn) {
	switch {
	case f.Required && !col.Required:
		d.emit(schema.ActionAlterColumn, fmt.Sprintf("Column '%s' in '%s' marked as NOT NULL", f.Name, d.table),
			d.ddl.SetNotNull(d.table, f.Name))
	case !f.Required && col.Required:
		d.emit(schema.ActionAlterColumn, fmt.Sprintf("Column '%s' in '%s' marked as NULLABLE", f.Name, d.table),
			d.ddl.DropNotNull(d.table, f.Name))
	}
}

func (d *tableDiff) alterUnique(f schema.FieldSchema, col schema.ExistingColumn) {
	switch {
	case f.Unique && !col.Unique:
		d.emit(schema.ActionAddConstraint, fmt.Sprintf("Column '%s' in '%s' is now UNIQUE", f.Name, d.table),
			d.ddl.DropUnique(d.table, f.Name),
			d.ddl.AddUnique(d.table, f.Name))
	case !f.Unique && col.Unique:
		d.emit(schema.ActionDropConstraint, fmt.Sprintf("Column '%s' in '%s' is no longer UNIQUE", f.Name, d.table),
			d.ddl.DropUnique(d.table, f.Name))
	}
}

func (d *tableDiff) alterDefault(f schema.FieldSchema, col schema.ExistingColumn, castType string) {
	if !f.HasDefault() {
		if col.Default != nil && !schema.IsSequenceDefault(*col.Default) && !schema.IsNullDefault(*col.Default) {
			d.emit(schema.ActionAlterColumn, fmt.Sprintf("Column '%s' in '%s' no longer has a default", f.Name, d.table),
				d.ddl.DropDefault(d.table, f.Name))
		}
		return
	}

	if col.Default != nil && schema.SameDefault(f.Default, *col.Default, castType) {
		return
	}
	d.emit(schema.ActionAlterColumn, defaultDescription(d.table, f.Name, f.Default, castType),
		d.ddl.SetDefault(d.table, f.Name, f.Default, castType))
}

func (d *tableDiff) alterForeignKey(f schema.FieldSchema, existing *schema.ExistingTable) {
	live, hasLive := existing.ForeignKeys[f.Name]
	ref, wantFK := f.Reference()

	if hasLive && (!wantFK || !foreignKeyMatches(f, ref, live)) {
		d.emit(schema.ActionRemoveForeignKey, fmt.Sprintf("FK '%s' removed from '%s'", f.Name, d.table),
			d.ddl.DropConstraint(d.table, live.Name))
		hasLive = false
	}
	if wantFK && !hasLive {
		d.emit(schema.ActionAddForeignKey, foreignKeyDescription(d.table, f),
			d.ddl.AddForeignKey(d.table, f))
	}
}

// foreignKeyMatches compares the target and the referential actions the
// field asks for. Unset actions are not compared.
func foreignKeyMatches(f schema.FieldSchema, ref schema.Reference, live schema.ExistingForeignKey) bool {
	if ref.Table != live.ReferencedTable {
		return false
	}
	if ref.Column != "" && ref.Column != live.ReferencedColumn {
		return false
	}
	if f.OnDelete != "" && !strings.EqualFold(f.OnDelete, live.OnDelete) {
		return false
	}
	if f.OnUpdate != "" && !strings.EqualFold(f.OnUpdate, live.OnUpdate) {
		return false
	}
	return true
}

// syncTracking emits at most one tracking operation for the whole table
func (d *tableDiff) syncTracking(desired []string, live schema.Tracking) {
	if len(desired) == 0 {
		if live.Enabled() {
			d.ops = append(d.ops, d.tracker.Disable(d.table))
		}
		return
	}

	if live.FunctionExists && live.TriggerExists && sameSet(desired, live.Columns) {
		return
	}
	d.ops = append(d.ops, d.tracker.Enable(d.table, desired))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func foreignKeyDescription(table string, f schema.FieldSchema) string {
	ref, _ := f.Reference()
	desc := fmt.Sprintf("Foreign key '%s' -> '%s' in '%s'", f.Name, ref, table)
	if f.OnDelete != "" {
		desc += " with ON DELETE " + strings.ToUpper(f.OnDelete)
	}
	if f.OnUpdate != "" {
		desc += " ON UPDATE " + strings.ToUpper(f.OnUpdate)
	}
	return desc
}

func defaultDescription(table, column string, value any, sqlType string) string {
	return fmt.Sprintf("Column '%s' in '%s' set default to '%s'::%s", column, table, schema.FormatDefault(value), schema.CastType(sqlType))
}
