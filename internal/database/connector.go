package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// maintenanceDatabase is used to create missing databases
const maintenanceDatabase = "postgres"

// Connector owns a single database handle. The handle is reused while it
// answers pings and is replaced when the target changes or the handle died.
// Callers must not run migrations concurrently.
type Connector struct {
	logger *slog.Logger
	open   func(driver, dsn string) (*sql.DB, error)

	db  *sql.DB
	dsn string
}

// NewConnector creates a connector. A nil logger uses slog.Default().
func NewConnector(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{logger: logger, open: sql.Open}
}

// Connect returns a live handle to the configured database, creating the
// database first when it does not exist.
func (c *Connector) Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.DSN()
	if c.db != nil && c.dsn == dsn {
		if err := c.db.PingContext(ctx); err == nil {
			return c.db, nil
		}
		c.logger.Warn("cached connection is closed, reconnecting", "target", cfg.String())
	}
	if err := c.Close(); err != nil {
		c.logger.Warn("failed to close previous connection", "error", err)
	}

	if err := c.EnsureDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := c.open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	c.logger.Debug("connected", "target", cfg.String())
	c.db = db
	c.dsn = dsn
	return db, nil
}

// EnsureDatabase creates the configured database when it is missing
func (c *Connector) EnsureDatabase(ctx context.Context, cfg Config) error {
	admin, err := c.open(cfg.Driver, cfg.dsn(maintenanceDatabase))
	if err != nil {
		return fmt.Errorf("failed to open maintenance connection: %w", err)
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Database,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check database %s: %w", cfg.Database, err)
	}
	if exists {
		return nil
	}

	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}
	c.logger.Info("database created", "database", cfg.Database)
	return nil
}

// Close closes the cached handle
func (c *Connector) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.dsn = ""
	return err
}
