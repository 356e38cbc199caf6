package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"veritas/internal/kbase"
)

// queryCmd returns the variable bindings satisfying a triple pattern,
// without justifications.
var queryCmd = &cobra.Command{
	Use:   "query [entity] [attr] [value]",
	Short: "Query the current bindings for a triple pattern",
	Long: `Evaluates a single triple pattern against the current (now) view
and prints each satisfying binding. Use "?Name" for a variable and "_"
for the anonymous wildcard.

Example:
  veritas query ?x sibling_of ?y`,
	Args: cobra.ExactArgs(3),
	RunE: runQuery,
}

// whyCmd returns the same bindings as query, plus the supporting facts
// (the justification) for each one - the "glass box" view into why a
// conclusion holds.
var whyCmd = &cobra.Command{
	Use:   "why [entity] [attr] [value]",
	Short: "Explain the derivation behind each binding of a triple pattern",
	Long: `Like query, but for each solution also prints the set of facts
that justify it.

Example:
  veritas why brother descendant_of grandfather`,
	Args: cobra.ExactArgs(3),
	RunE: runWhy,
}

func buildQuery(engine *kbase.Engine, entity, attr, value string) (*kbase.Predicate, error) {
	clause, err := parsePattern(engine.Schema, entity, attr, value)
	if err != nil {
		return nil, err
	}
	return kbase.NewPredicate(engine.Schema, clause)
}

func runQuery(cmd *cobra.Command, args []string) error {
	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	query, err := buildQuery(engine, args[0], args[1], args[2])
	if err != nil {
		return err
	}

	logger.Info("running query", zap.String("attr", args[1]))
	contexts, err := engine.Solve(query, kbase.Now())
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(contexts) == 0 {
		fmt.Println("no solutions")
		return nil
	}
	for _, ctx := range contexts {
		fmt.Println(formatContext(ctx))
	}
	return nil
}

func runWhy(cmd *cobra.Command, args []string) error {
	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	query, err := buildQuery(engine, args[0], args[1], args[2])
	if err != nil {
		return err
	}

	logger.Info("explaining query", zap.String("attr", args[1]))
	solutions, err := engine.ExplainSolutions(query, kbase.Now())
	if err != nil {
		return fmt.Errorf("why failed: %w", err)
	}
	if len(solutions) == 0 {
		fmt.Println("no solutions")
		return nil
	}
	for _, sol := range solutions {
		fmt.Println(formatContext(sol.Context))
		for f := range sol.Justification {
			fmt.Printf("  because (%s, %s, %s)\n", f.Entity, f.Attr, ordinalString(f.Value))
		}
	}
	return nil
}

func formatContext(ctx kbase.Context) string {
	out := ""
	for name, v := range ctx {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%s", name, ordinalString(v))
	}
	if out == "" {
		return "(matched, no free variables)"
	}
	return out
}
