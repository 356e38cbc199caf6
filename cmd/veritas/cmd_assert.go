package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// assertCmd adds a fact and drives saturation to a fixed point.
var assertCmd = &cobra.Command{
	Use:   "assert [entity] [attr] [value]",
	Short: "Assert a fact and re-saturate the inference closure",
	Long: `Adds an (entity, attribute, value) fact, superseding any prior
cardinality-one value for the same (entity, attribute), then runs
forward chaining to a fixed point.

Example:
  veritas assert brother child_of father`,
	Args: cobra.ExactArgs(3),
	RunE: runAssert,
}

// retractCmd removes a user-asserted fact and cascades to any derived
// fact whose support it eliminates.
var retractCmd = &cobra.Command{
	Use:   "retract [entity] [attr] [value]",
	Short: "Retract a fact, cascading to now-unsupported derived facts",
	Long: `Removes an (entity, attribute, value) fact. Fails with
CannotRetractDerived if the fact is itself inferred rather than
user-asserted.

Example:
  veritas retract father child_of grandfather`,
	Args: cobra.ExactArgs(3),
	RunE: runRetract,
}

func runAssert(cmd *cobra.Command, args []string) error {
	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	fact, err := parseFact(engine.Schema, args[0], args[1], args[2])
	if err != nil {
		return err
	}

	logger.Info("asserting fact", zap.String("entity", fact.Entity), zap.String("attr", fact.Attr))
	tx, err := engine.Add(fact)
	if err != nil {
		return fmt.Errorf("assert failed: %w", err)
	}
	fmt.Printf("asserted (%s, %s, %v) in tx %s\n", fact.Entity, fact.Attr, ordinalString(fact.Value), tx)
	return nil
}

func runRetract(cmd *cobra.Command, args []string) error {
	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer store.Close()

	fact, err := parseFact(engine.Schema, args[0], args[1], args[2])
	if err != nil {
		return err
	}

	logger.Info("retracting fact", zap.String("entity", fact.Entity), zap.String("attr", fact.Attr))
	if err := engine.Remove(fact); err != nil {
		return fmt.Errorf("retract failed: %w", err)
	}
	fmt.Printf("retracted (%s, %s, %v)\n", fact.Entity, fact.Attr, ordinalString(fact.Value))
	return nil
}
