// Package main implements the veritas CLI: a cobra front end over the
// internal/kbase engine for asserting facts, retracting them, running
// queries, explaining derivations, and refreshing inference after a
// rule-set change.
//
// # File Index
//
//   - main.go         - entry point, rootCmd, global flags, engine wiring
//   - spec_loader.go  - YAML schema/rule file loading
//   - pattern.go      - CLI triple-pattern parsing
//   - cmd_assert.go   - assertCmd, retractCmd
//   - cmd_query.go    - queryCmd, whyCmd
//   - cmd_refresh.go  - refreshCmd
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"veritas/internal/config"
	"veritas/internal/kbase"
	"veritas/internal/logging"
	"veritas/internal/store/sqlitestore"
)

var (
	verbose    bool
	schemaPath string
	rulesPath  string
	storePath  string

	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "veritas - an EAV knowledge base with forward-chaining inference",
	Long: `veritas stores entity-attribute-value facts and maintains their
forward-chaining closure under a compiled rule set, with full
bitemporal history and cascading retraction.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cwd, _ := os.Getwd()
		lc := logging.Config{DebugMode: verbose, Level: "info"}
		if verbose {
			lc.Level = "debug"
		}
		if err := logging.Initialize(cwd, lc); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schema.yaml", "Path to the attribute schema file")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "rules.yaml", "Path to the rule declarations file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to the SQLite fact store (default: config's store_path)")

	rootCmd.AddCommand(
		assertCmd,
		retractCmd,
		queryCmd,
		whyCmd,
		refreshCmd,
	)
}

// openEngine loads the schema and rule files and wires a SQLite-backed
// Engine against storePath, returning the open store so the caller can
// Close it.
func openEngine() (*kbase.Engine, *sqlitestore.Store, error) {
	timer := logging.StartTimer(logging.CategoryCLI, "openEngine")
	defer timer.Stop()

	cfg := config.DefaultConfig()
	path := storePath
	if path == "" {
		path = cfg.StorePath
	}

	schema, err := loadSchema(schemaPath)
	if err != nil {
		return nil, nil, err
	}
	decls, err := loadRules(rulesPath, schema)
	if err != nil {
		return nil, nil, err
	}
	rules, err := kbase.CompileRules(schema, decls...)
	if err != nil {
		return nil, nil, fmt.Errorf("compile rules: %w", err)
	}
	store, err := sqlitestore.Open(path, schema)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return kbase.NewEngine(schema, rules, store), store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
