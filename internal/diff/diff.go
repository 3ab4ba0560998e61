package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/koba/dbsync/internal/schema"
)

// TableChanges holds the operations planned for one table
type TableChanges struct {
	Table      string
	Created    bool
	Operations []schema.Operation
}

// Result is the complete plan for one module
type Result struct {
	Module string
	Tables []TableChanges

	// Extensions holds the extensions to install before any table changes
	Extensions []schema.Operation

	// Deferred holds every foreign key to add, for new and existing tables
	// alike. They run after every table of the module exists.
	Deferred []schema.Operation

	// Undeclared lists live tables the module does not declare. They are
	// reported and never dropped.
	Undeclared []string
}

// Empty reports whether nothing needs to change
func (r *Result) Empty() bool {
	return len(r.Operations()) == 0
}

// Operations returns every planned operation in execution order
func (r *Result) Operations() []schema.Operation {
	ops := append([]schema.Operation(nil), r.Extensions...)
	for _, t := range r.Tables {
		ops = append(ops, t.Operations...)
	}
	return append(ops, r.Deferred...)
}

// Compare plans every desired table of a module. Tables missing from
// existing are created. Foreign keys are added last so a reference may
// point at a table declared later in the module.
func (e *Engine) Compare(module string, desired []*schema.Table, existing map[string]*schema.ExistingTable) *Result {
	result := &Result{Module: module}

	for _, table := range desired {
		live, exists := existing[table.Name]
		if !exists {
			ops, deferred := e.Create(table)
			result.Tables = append(result.Tables, TableChanges{Table: table.Name, Created: true, Operations: ops})
			result.Deferred = append(result.Deferred, deferred...)
			continue
		}

		var ops []schema.Operation
		for _, op := range e.Diff(table, live) {
			if op.Action == schema.ActionAddForeignKey {
				result.Deferred = append(result.Deferred, op)
				continue
			}
			ops = append(ops, op)
		}
		if len(ops) > 0 {
			result.Tables = append(result.Tables, TableChanges{Table: table.Name, Operations: ops})
		}
	}

	return result
}

// Display prints the plan in a human-readable format
func Display(w io.Writer, result *Result) {
	fmt.Fprintf(w, "=== Module: %s ===\n\n", result.Module)

	if result.Empty() {
		fmt.Fprintln(w, "No differences found.")
		fmt.Fprintln(w)
		displayUndeclared(w, result.Undeclared)
		return
	}

	if len(result.Extensions) > 0 {
		fmt.Fprintln(w, "Extensions:")
		displayOperations(w, result.Extensions)
	}

	for _, t := range result.Tables {
		if t.Created {
			fmt.Fprintf(w, "Table: %s (new table)\n", t.Table)
		} else {
			fmt.Fprintf(w, "Table: %s\n", t.Table)
		}
		displayOperations(w, t.Operations)
	}

	if len(result.Deferred) > 0 {
		fmt.Fprintln(w, "Foreign keys:")
		displayOperations(w, result.Deferred)
	}
	displayUndeclared(w, result.Undeclared)
}

func displayUndeclared(w io.Writer, tables []string) {
	if len(tables) == 0 {
		return
	}
	fmt.Fprintln(w, "Tables not declared by the module (left untouched):")
	for _, name := range tables {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	fmt.Fprintln(w)
}

func displayOperations(w io.Writer, ops []schema.Operation) {
	for _, op := range ops {
		fmt.Fprintf(w, "  - %s: %s\n", op.Action, op.Description)
		if len(op.Statements) > 0 {
			fmt.Fprintf(w, "      %s\n", strings.ReplaceAll(op.SQL(), "\n", "\n      "))
		}
	}
	fmt.Fprintln(w)
}
