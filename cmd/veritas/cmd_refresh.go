package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// refreshCmd drops justifications for rules no longer present, GCs any
// derived fact that becomes unsupported, and re-saturates from the
// current rule set - used after editing rules.yaml.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-run inference after a rule-set change",
	Long: `Deletes justification rows belonging to rules that no longer
exist in rules.yaml, garbage-collects any derived fact that becomes
unsupported as a result, then re-saturates the closure against the
current rule set.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := engine.RefreshInference(); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	fmt.Println("inference refreshed")
	return nil
}
