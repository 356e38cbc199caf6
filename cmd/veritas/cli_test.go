package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"veritas/internal/kbase"
)

const siblingsSchema = `
attributes:
  - name: child_of
    type: string
    cardinality: many
  - name: sibling_of
    type: string
    cardinality: many
`

const siblingsRules = `
rules:
  - name: siblings
    body:
      - entity: "?a"
        attr: child_of
        value: "?p"
      - entity: "?b"
        attr: child_of
        value: "?p"
    head:
      - entity: "?a"
        attr: sibling_of
        value: "?b"
`

func setupCLI(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()

	dir := t.TempDir()
	sp := filepath.Join(dir, "schema.yaml")
	rp := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(sp, []byte(siblingsSchema), 0o644))
	require.NoError(t, os.WriteFile(rp, []byte(siblingsRules), 0o644))

	schemaPath = sp
	rulesPath = rp
	storePath = filepath.Join(dir, "veritas.db")

	t.Cleanup(func() {
		schemaPath = "schema.yaml"
		rulesPath = "rules.yaml"
		storePath = ""
	})
}

func TestAssertThenQueryDerivesSiblings(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}

	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "father"}))
	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "mother"}))
	require.NoError(t, runAssert(cmd, []string{"sister", "child_of", "father"}))
	require.NoError(t, runAssert(cmd, []string{"sister", "child_of", "mother"}))

	engine, store, err := openEngine()
	require.NoError(t, err)
	defer store.Close()

	query, err := buildQuery(engine, "?x", "sibling_of", "?y")
	require.NoError(t, err)
	contexts, err := engine.Solve(query, kbase.Now())
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	pairs := map[[2]string]bool{}
	for _, ctx := range contexts {
		pairs[[2]string{ctx["x"].AsString(), ctx["y"].AsString()}] = true
	}
	require.True(t, pairs[[2]string{"brother", "sister"}])
	require.True(t, pairs[[2]string{"sister", "brother"}])
}

func TestRetractCascadesAndQueryCommandSucceeds(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}

	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "father"}))
	require.NoError(t, runAssert(cmd, []string{"sister", "child_of", "father"}))
	require.NoError(t, runQuery(cmd, []string{"?x", "sibling_of", "?y"}))

	require.NoError(t, runRetract(cmd, []string{"brother", "child_of", "father"}))

	engine, store, err := openEngine()
	require.NoError(t, err)
	defer store.Close()

	query, err := buildQuery(engine, "?x", "sibling_of", "?y")
	require.NoError(t, err)
	contexts, err := engine.Solve(query, kbase.Now())
	require.NoError(t, err)
	require.Empty(t, contexts)
}

func TestRetractDerivedFactIsRejected(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}

	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "father"}))
	require.NoError(t, runAssert(cmd, []string{"sister", "child_of", "father"}))

	err := runRetract(cmd, []string{"brother", "sibling_of", "sister"})
	require.Error(t, err)
}

func TestWhyCommandSucceeds(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}

	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "father"}))
	require.NoError(t, runAssert(cmd, []string{"sister", "child_of", "father"}))
	require.NoError(t, runWhy(cmd, []string{"?x", "sibling_of", "?y"}))
}

func TestRefreshCommandSucceeds(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}

	require.NoError(t, runAssert(cmd, []string{"brother", "child_of", "father"}))
	require.NoError(t, runRefresh(cmd, []string{}))
}
