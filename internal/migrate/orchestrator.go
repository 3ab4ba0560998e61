// Package migrate reconciles the live schema of every module database with
// the tables the module declares.
//
// Runs against the same database must be serialized by the caller: no
// advisory lock or version table guards concurrent runs.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/koba/dbsync/internal/database"
	"github.com/koba/dbsync/internal/diff"
	"github.com/koba/dbsync/internal/generator"
	"github.com/koba/dbsync/internal/module"
	"github.com/koba/dbsync/internal/schema"
	"github.com/koba/dbsync/internal/snapshot"
)

// DefaultExtensions are installed in every module database unless the
// module lists its own
var DefaultExtensions = []string{"unaccent", "citext"}

// Connector resolves a live handle for a module database
type Connector interface {
	Connect(ctx context.Context, cfg database.Config) (*sql.DB, error)
}

// Orchestrator migrates modules one at a time, each inside one transaction
type Orchestrator struct {
	connector Connector
	engine    *diff.Engine
	logger    *slog.Logger
}

// New creates an orchestrator. A nil logger uses slog.Default().
func New(connector Connector, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		connector: connector,
		engine:    diff.NewEngine(),
		logger:    logger,
	}
}

type target struct {
	module *module.Module
	config database.Config
}

// resolve loads and validates the configuration of every module before any
// work is done
func (o *Orchestrator) resolve(source module.Source) ([]target, error) {
	modules, err := source.Modules()
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}

	targets := make([]target, 0, len(modules))
	for _, m := range modules {
		cfg, err := database.LoadConfig(m.Name, m.Database)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name, err)
		}
		targets = append(targets, target{module: m, config: cfg})
	}
	return targets, nil
}

// Run migrates every module. The first failing module is rolled back and
// stops the run; modules committed before it stay committed.
func (o *Orchestrator) Run(ctx context.Context, source module.Source) error {
	logger := o.logger.With("run_id", uuid.NewString())

	targets, err := o.resolve(source)
	if err != nil {
		return err
	}

	logger.Info("migration started", "modules", len(targets))
	for _, t := range targets {
		if err := o.migrateModule(ctx, logger.With("module", t.module.Name), t); err != nil {
			return fmt.Errorf("module %s: %w", t.module.Name, err)
		}
	}
	logger.Info("migration finished")
	return nil
}

func (o *Orchestrator) migrateModule(ctx context.Context, logger *slog.Logger, t target) (err error) {
	db, err := o.connector.Connect(ctx, t.config)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Error("failed to roll back", "error", rbErr)
			}
			logger.Error("module rolled back", "error", err)
		}
	}()

	for _, stmt := range generator.AuditTables() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit tables: %w", err)
		}
	}

	result, _, err := o.planModule(ctx, tx, t.module)
	if err != nil {
		return err
	}
	for _, name := range result.Undeclared {
		logger.Warn("table not declared by module", "table", name)
	}

	ops := result.Operations()
	for _, op := range ops {
		if err := apply(ctx, tx, op); err != nil {
			return err
		}
		logger.Info("applied", "table", op.Table, "action", op.Action, "description", op.Description)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logger.Info("module migrated", "operations", len(ops))
	return nil
}

// apply runs the statements of one operation and records it in the log table
func apply(ctx context.Context, q database.Querier, op schema.Operation) error {
	where := string(op.Action)
	if op.Table != "" {
		where += " on " + op.Table
	}

	for _, stmt := range op.Statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}
	if _, err := q.ExecContext(ctx, generator.InsertLogEntry(), string(op.Action), op.Description); err != nil {
		return fmt.Errorf("failed to log %s: %w", where, err)
	}
	return nil
}

// planModule introspects the module tables and extensions and computes the
// operations to apply. The live schema of the declared tables is returned
// alongside the plan.
func (o *Orchestrator) planModule(ctx context.Context, q database.Querier, m *module.Module) (*diff.Result, map[string]*schema.ExistingTable, error) {
	inspector := database.NewIntrospector(q)

	extensions := m.Extensions
	if extensions == nil {
		extensions = DefaultExtensions
	}
	var extensionOps []schema.Operation
	for _, ext := range extensions {
		installed, err := inspector.ExtensionInstalled(ctx, ext)
		if err != nil {
			return nil, nil, err
		}
		if !installed {
			extensionOps = append(extensionOps, generator.EnableExtension(ext))
		}
	}

	existing, err := inspect(ctx, inspector, m)
	if err != nil {
		return nil, nil, err
	}

	result := o.engine.Compare(m.Name, m.Tables, existing)
	result.Extensions = extensionOps

	live, err := inspector.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range live {
		if name == schema.MigrationLogTable || name == schema.MigrationLogDataTable {
			continue
		}
		if _, declared := m.Table(name); !declared {
			result.Undeclared = append(result.Undeclared, name)
		}
	}
	return result, existing, nil
}

// inspect reads every declared table that exists
func inspect(ctx context.Context, inspector *database.Introspector, m *module.Module) (map[string]*schema.ExistingTable, error) {
	existing := make(map[string]*schema.ExistingTable)
	for _, table := range m.Tables {
		exists, err := inspector.TableExists(ctx, table.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		live, err := inspector.GetTableSchema(ctx, table.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect %s: %w", table.Name, err)
		}
		existing[table.Name] = live
	}
	return existing, nil
}

// Plan computes the operations of every module without applying them. Each
// module is read in a read-only transaction that is rolled back.
func (o *Orchestrator) Plan(ctx context.Context, source module.Source) ([]*diff.Result, error) {
	targets, err := o.resolve(source)
	if err != nil {
		return nil, err
	}

	var results []*diff.Result
	for _, t := range targets {
		var result *diff.Result
		err := o.readOnly(ctx, t.config, func(tx *sql.Tx) error {
			var err error
			result, _, err = o.planModule(ctx, tx, t.module)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", t.module.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Snapshot captures the live schema of the declared tables of a module
// together with the pending plan. The database recorded in the snapshot is
// the one actually read, after environment overrides.
func (o *Orchestrator) Snapshot(ctx context.Context, m *module.Module) (*snapshot.Snapshot, error) {
	cfg, err := database.LoadConfig(m.Name, m.Database)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name, err)
	}

	snap := snapshot.New(m.Name, cfg.Database)
	err = o.readOnly(ctx, cfg, func(tx *sql.Tx) error {
		result, existing, err := o.planModule(ctx, tx, m)
		if err != nil {
			return err
		}
		snap.Tables = existing
		snap.Operations = result.Operations()
		snap.SetUndeclared(result.Undeclared)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name, err)
	}
	return snap, nil
}

// readOnly runs fn in a read-only transaction that is always rolled back
func (o *Orchestrator) readOnly(ctx context.Context, cfg database.Config, fn func(tx *sql.Tx) error) error {
	db, err := o.connector.Connect(ctx, cfg)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(tx)
}

// History returns the latest structural log entries of a module database.
// A database that was never migrated has no history.
func (o *Orchestrator) History(ctx context.Context, m *module.Module, limit int) ([]schema.LogEntry, error) {
	cfg, err := database.LoadConfig(m.Name, m.Database)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name, err)
	}

	var entries []schema.LogEntry
	err = o.readOnly(ctx, cfg, func(tx *sql.Tx) error {
		inspector := database.NewIntrospector(tx)
		exists, err := inspector.TableExists(ctx, schema.MigrationLogTable)
		if err != nil || !exists {
			return err
		}
		entries, err = inspector.ReadLog(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name, err)
	}
	return entries, nil
}
