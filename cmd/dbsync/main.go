package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/koba/dbsync/internal/database"
	"github.com/koba/dbsync/internal/diff"
	"github.com/koba/dbsync/internal/domain"
	"github.com/koba/dbsync/internal/migrate"
	"github.com/koba/dbsync/internal/module"
	"github.com/koba/dbsync/internal/snapshot"
)

var (
	appsDir      string
	moduleName   string
	logLevel     string
	logFormat    string
	snapshotPath string
	outputDir    string
	historyLimit int
	dollar       bool
	hierarchy    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbsync",
	Short: "Declarative PostgreSQL schema sync",
	Long: `Reconcile the schema of every application module database with the tables
the module declares, logging each structural change.`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema changes",
	Long:  `Create missing databases, tables and columns and bring existing ones in line with the module files.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show pending schema changes",
	Long:  `Print the operations migrate would apply without changing anything.`,
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save the live schema of modules",
	Long:  `Save the live schema and pending operations of each module to a SQLite file.`,
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the structural change log",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var translateCmd = &cobra.Command{
	Use:   "translate <domain-json>",
	Short: "Translate a domain expression to SQL",
	Long: `Translate a JSON domain such as '["|", ["a", "=", 1], ["b", "in", [2, 3]]]'
into a WHERE clause and its parameters.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	for _, cmd := range []*cobra.Command{migrateCmd, planCmd, snapshotCmd, historyCmd} {
		cmd.Flags().StringVar(&appsDir, "apps-dir", "./apps", "Directory holding <module>/<module>.yaml files")
		cmd.Flags().StringVar(&moduleName, "module", "", "Only process this module")
	}

	planCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Plan against a saved snapshot instead of the live database")
	snapshotCmd.Flags().StringVar(&outputDir, "output-dir", "./snapshots", "Output directory for snapshots")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries per module (0: all)")
	translateCmd.Flags().BoolVar(&dollar, "dollar", false, "Use $n placeholders instead of ?")
	translateCmd.Flags().StringVar(&hierarchy, "hierarchy-table", "", "Table queried by child_of and parent_of")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(translateCmd)
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", logFormat)
	}
}

// newOrchestrator returns the orchestrator and the connector it owns. The
// caller closes the connector.
func newOrchestrator() (*migrate.Orchestrator, *database.Connector, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	connector := database.NewConnector(logger)
	return migrate.New(connector, logger), connector, nil
}

func source() module.Dir {
	return module.Dir{Path: appsDir, Only: moduleName}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	orchestrator, connector, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer connector.Close()

	if err := orchestrator.Run(cmd.Context(), source()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Println("Migration completed successfully")
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	if snapshotPath != "" {
		return planSnapshot(cmd.Context())
	}

	orchestrator, connector, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer connector.Close()

	results, err := orchestrator.Plan(cmd.Context(), source())
	if err != nil {
		return fmt.Errorf("failed to plan: %w", err)
	}
	for _, result := range results {
		diff.Display(os.Stdout, result)
	}
	return nil
}

// planSnapshot compares the module the snapshot was taken of against the
// saved schema. No database is contacted.
func planSnapshot(ctx context.Context) error {
	snap, err := snapshot.Load(ctx, snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	name := moduleName
	if name == "" {
		name = snap.Module()
	}
	modules, err := module.Dir{Path: appsDir, Only: name}.Modules()
	if err != nil {
		return err
	}

	fmt.Printf("Planning against snapshot taken at %s\n\n", snap.Metadata[snapshot.KeyCreatedAt])
	result := diff.NewEngine().Compare(modules[0].Name, modules[0].Tables, snap.Tables)
	result.Undeclared = snap.Undeclared()
	diff.Display(os.Stdout, result)
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	orchestrator, connector, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer connector.Close()

	modules, err := source().Modules()
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	for _, m := range modules {
		snap, err := orchestrator.Snapshot(cmd.Context(), m)
		if err != nil {
			return fmt.Errorf("failed to inspect module: %w", err)
		}

		outputPath := filepath.Join(outputDir, fmt.Sprintf("%s-%s.db", m.Name, timestamp))
		fmt.Printf("Creating snapshot: %s\n", outputPath)
		if err := snapshot.Save(cmd.Context(), snap, outputPath); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
	}

	fmt.Printf("%d snapshot(s) created successfully\n", len(modules))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	orchestrator, connector, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer connector.Close()

	modules, err := source().Modules()
	if err != nil {
		return err
	}

	for _, m := range modules {
		entries, err := orchestrator.History(cmd.Context(), m, historyLimit)
		if err != nil {
			return err
		}

		fmt.Printf("=== Module: %s ===\n\n", m.Name)
		if len(entries) == 0 {
			fmt.Println("No migrations recorded.")
		}
		for _, e := range entries {
			fmt.Printf("%s  %-22s %s\n", e.Timestamp.Format(time.DateTime), e.Action, e.Description)
		}
		fmt.Println()
	}
	return nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	d, err := domain.ParseJSON([]byte(args[0]))
	if err != nil {
		return err
	}

	t := domain.Translator{HierarchyTable: hierarchy}
	if dollar {
		t.Placeholder = domain.Dollar
	}
	clause, params, err := t.Translate(d)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	fmt.Println(clause)
	fmt.Println(string(encoded))
	return nil
}
