package kbase_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"veritas/internal/kbase"
	"veritas/internal/kbase/kberrors"
	"veritas/internal/kbase/memstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func familySchema() *kbase.Schema {
	return kbase.NewSchema(
		kbase.Attribute{Name: "child_of", DataType: kbase.StringType, Cardinality: kbase.CardinalityMany},
		kbase.Attribute{Name: "gender", DataType: kbase.StringType, Cardinality: kbase.CardinalityOne},
		kbase.Attribute{Name: "age", DataType: kbase.IntType, Cardinality: kbase.CardinalityOne},
		kbase.Attribute{Name: "sibling_of", DataType: kbase.StringType, Cardinality: kbase.CardinalityMany},
		kbase.Attribute{Name: "descendant_of", DataType: kbase.StringType, Cardinality: kbase.CardinalityMany},
	)
}

func mustClause(t *testing.T, schema *kbase.Schema, entity kbase.Expr, attr string, value kbase.Expr) kbase.Clause {
	t.Helper()
	return kbase.Clause{Entity: entity, Attr: attr, Value: value}
}

func str(v string) kbase.Expr  { return kbase.Const{Value: kbase.StringValue(v)} }
func strVar(n string) kbase.Expr { return kbase.Var{Name: n, Type: kbase.StringType} }

func siblingsRule(t *testing.T, schema *kbase.Schema) kbase.Rule {
	t.Helper()
	decl := kbase.RuleDecl{
		Name: "siblings",
		Body: []kbase.Clause{
			mustClause(t, schema, strVar("a"), "child_of", strVar("p")),
			mustClause(t, schema, strVar("b"), "child_of", strVar("p")),
		},
		Head: []kbase.Clause{
			mustClause(t, schema, strVar("a"), "sibling_of", strVar("b")),
		},
	}
	rules, err := kbase.CompileRules(schema, decl)
	if err != nil {
		t.Fatalf("compile siblings rule: %v", err)
	}
	return rules[0]
}

func descendantRules(t *testing.T, schema *kbase.Schema) []kbase.Rule {
	t.Helper()
	base := kbase.RuleDecl{
		Name: "descendant_base",
		Body: []kbase.Clause{
			mustClause(t, schema, strVar("c"), "child_of", strVar("p")),
		},
		Head: []kbase.Clause{
			mustClause(t, schema, strVar("c"), "descendant_of", strVar("p")),
		},
	}
	trans := kbase.RuleDecl{
		Name: "descendant_transitive",
		Body: []kbase.Clause{
			mustClause(t, schema, strVar("gc"), "descendant_of", strVar("p")),
			mustClause(t, schema, strVar("p"), "descendant_of", strVar("gp")),
		},
		Head: []kbase.Clause{
			mustClause(t, schema, strVar("gc"), "descendant_of", strVar("gp")),
		},
	}
	rules, err := kbase.CompileRules(schema, base, trans)
	if err != nil {
		t.Fatalf("compile descendant rules: %v", err)
	}
	return rules
}

func contextPairs(t *testing.T, ctxs []kbase.Context, a, b string) [][2]string {
	t.Helper()
	out := make([][2]string, 0, len(ctxs))
	for _, c := range ctxs {
		out = append(out, [2]string{c[a].AsString(), c[b].AsString()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Scenario 1: siblings (spec §8.1).
func TestSiblings(t *testing.T) {
	schema := familySchema()
	rule := siblingsRule(t, schema)
	engine := kbase.NewEngine(schema, []kbase.Rule{rule}, memstore.New())

	for _, f := range []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("mother")},
	} {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add(%+v): %v", f, err)
		}
	}

	query, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("x"), "sibling_of", strVar("y")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(query, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	want := [][2]string{{"brother", "sister"}, {"sister", "brother"}}
	got := contextPairs(t, ctxs, "x", "y")
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b [2]string) bool { return a[0] < b[0] })); diff != "" {
		t.Errorf("sibling pairs mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 2: recursive descendants (spec §8.2).
func TestRecursiveDescendants(t *testing.T) {
	schema := familySchema()
	rules := descendantRules(t, schema)
	engine := kbase.NewEngine(schema, rules, memstore.New())

	facts := []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "father", Attr: "child_of", Value: kbase.StringValue("grandfather")},
	}
	for _, f := range facts {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add(%+v): %v", f, err)
		}
	}

	query, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("a"), "descendant_of", strVar("b")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(query, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 7 {
		t.Fatalf("expected 7 descendant pairs, got %d: %v", len(ctxs), contextPairs(t, ctxs, "a", "b"))
	}

	found := map[[2]string]bool{}
	for _, p := range contextPairs(t, ctxs, "a", "b") {
		found[p] = true
	}
	for _, want := range [][2]string{{"brother", "grandfather"}, {"sister", "grandfather"}} {
		if !found[want] {
			t.Errorf("missing expected descendant pair %v", want)
		}
	}
}

// Scenario 3: cardinality-one supersession.
func TestCardinalityOneSupersession(t *testing.T) {
	schema := familySchema()
	engine := kbase.NewEngine(schema, nil, memstore.New())

	if _, err := engine.Add(kbase.Fact{Entity: "brother", Attr: "age", Value: kbase.IntValue(10)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := engine.Add(kbase.Fact{Entity: "brother", Attr: "age", Value: kbase.IntValue(11)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	query, err := kbase.NewPredicate(schema, mustClause(t, schema, str("brother"), "age", kbase.Var{Name: "age", Type: kbase.IntType}))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(query, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 1 || ctxs[0]["age"].AsInt() != 11 {
		t.Fatalf("expected exactly one current age=11, got %v", ctxs)
	}
}

// Scenario 4: cascading retraction (spec §8.4).
func TestCascadingRetraction(t *testing.T) {
	schema := familySchema()
	rules := descendantRules(t, schema)
	engine := kbase.NewEngine(schema, rules, memstore.New())

	facts := []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "father", Attr: "child_of", Value: kbase.StringValue("grandfather")},
	}
	for _, f := range facts {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add(%+v): %v", f, err)
		}
	}

	if err := engine.Remove(kbase.Fact{Entity: "father", Attr: "child_of", Value: kbase.StringValue("grandfather")}); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	toGrandfather, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("a"), "descendant_of", str("grandfather")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(toGrandfather, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 0 {
		t.Fatalf("expected no descendants of grandfather after cascading retraction, got %v", ctxs)
	}

	stillThere, err := kbase.NewPredicate(schema, mustClause(t, schema, str("brother"), "descendant_of", str("father")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err = engine.Solve(stillThere, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 1 {
		t.Fatalf("expected (brother, descendant_of, father) to survive, got %v", ctxs)
	}
}

// Scenario 5: cannot retract derived (spec §8.5).
func TestCannotRetractDerived(t *testing.T) {
	schema := familySchema()
	rules := descendantRules(t, schema)
	engine := kbase.NewEngine(schema, rules, memstore.New())

	facts := []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "father", Attr: "child_of", Value: kbase.StringValue("grandfather")},
	}
	for _, f := range facts {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add(%+v): %v", f, err)
		}
	}

	err := engine.Remove(kbase.Fact{Entity: "sister", Attr: "descendant_of", Value: kbase.StringValue("grandfather")})
	if err == nil {
		t.Fatal("expected CannotRetractDerived, got nil")
	}
	var cannotRetract *kberrors.CannotRetractDerived
	if !errors.As(err, &cannotRetract) {
		t.Fatalf("expected *kberrors.CannotRetractDerived, got %T: %v", err, err)
	}
}

// Re-asserting an already-valid fact must not re-seed saturation or add
// a duplicate row (SPEC_FULL supplemented feature #2).
func TestBulkAddOfAlreadyValidFactIsANoOp(t *testing.T) {
	schema := familySchema()
	rule := siblingsRule(t, schema)
	engine := kbase.NewEngine(schema, []kbase.Rule{rule}, memstore.New())

	f := kbase.Fact{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")}
	if _, err := engine.Add(f); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := engine.Add(f); err != nil {
		t.Fatalf("Add (re-assert): %v", err)
	}

	all, err := engine.Store.AllFacts(kbase.Now())
	if err != nil {
		t.Fatalf("AllFacts: %v", err)
	}
	count := 0
	for _, got := range all {
		if got.Equal(f) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored row for re-asserted fact, got %d", count)
	}
}

// ExplainSolutions and Solve must never disagree on which bindings exist
// (SPEC_FULL supplemented feature #1: Solve is implemented in terms of
// ExplainSolutions).
func TestSolveAgreesWithExplainSolutions(t *testing.T) {
	schema := familySchema()
	rule := siblingsRule(t, schema)
	engine := kbase.NewEngine(schema, []kbase.Rule{rule}, memstore.New())

	for _, f := range []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
	} {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	query, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("x"), "sibling_of", strVar("y")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(query, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	sols, err := engine.ExplainSolutions(query, kbase.Now())
	if err != nil {
		t.Fatalf("ExplainSolutions: %v", err)
	}
	if len(ctxs) != len(sols) {
		t.Fatalf("Solve returned %d bindings, ExplainSolutions returned %d", len(ctxs), len(sols))
	}
	for _, s := range sols {
		if len(s.Justification) == 0 {
			t.Error("expected a non-empty justification for a derived sibling binding")
		}
	}
}

// RefreshInference must GC a derived fact whose supporting rule was
// removed from the rule set.
func TestRefreshInferenceDropsFactsForRemovedRules(t *testing.T) {
	schema := familySchema()
	rule := siblingsRule(t, schema)
	store := memstore.New()
	engine := kbase.NewEngine(schema, []kbase.Rule{rule}, store)

	for _, f := range []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
	} {
		if _, err := engine.Add(f); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	engine.Rules = nil
	if err := engine.RefreshInference(); err != nil {
		t.Fatalf("RefreshInference: %v", err)
	}

	query, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("x"), "sibling_of", strVar("y")))
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(query, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 0 {
		t.Fatalf("expected sibling_of facts to be GC'd after rule removal, got %v", ctxs)
	}
}

// Scenario 6: a rule whose body constrains two Int-valued variables with
// comparisons (spec §8.6). Asserting a warm reading for the same entity
// must retract the derived weather fact via cardinality-one supersession
// cascading into the justification graph, not just leave it stale.
func weatherSchema() *kbase.Schema {
	return kbase.NewSchema(
		kbase.Attribute{Name: "precipitation_percent", DataType: kbase.IntType, Cardinality: kbase.CardinalityOne},
		kbase.Attribute{Name: "temperature", DataType: kbase.IntType, Cardinality: kbase.CardinalityOne},
		kbase.Attribute{Name: "weather", DataType: kbase.StringType, Cardinality: kbase.CardinalityOne},
	)
}

func atLeast(name string, bound int64) kbase.Expr {
	v := kbase.Var{Name: name, Type: kbase.IntType}
	return kbase.And{Left: v, Right: kbase.Cmp{Op: kbase.Ge, Left: v, Right: kbase.Const{Value: kbase.IntValue(bound)}}}
}

func atMost(name string, bound int64) kbase.Expr {
	v := kbase.Var{Name: name, Type: kbase.IntType}
	return kbase.And{Left: v, Right: kbase.Cmp{Op: kbase.Le, Left: v, Right: kbase.Const{Value: kbase.IntValue(bound)}}}
}

func snowRule(t *testing.T, schema *kbase.Schema) kbase.Rule {
	t.Helper()
	decl := kbase.RuleDecl{
		Name: "snow",
		Body: []kbase.Clause{
			{Entity: strVar("p"), Attr: "precipitation_percent", Value: atLeast("x", 50)},
			{Entity: strVar("p"), Attr: "temperature", Value: atMost("t", 0)},
		},
		Head: []kbase.Clause{
			{Entity: strVar("p"), Attr: "weather", Value: str("snow")},
		},
	}
	rules, err := kbase.CompileRules(schema, decl)
	if err != nil {
		t.Fatalf("compile snow rule: %v", err)
	}
	return rules[0]
}

func TestComparisonRuleWeather(t *testing.T) {
	schema := weatherSchema()
	rule := snowRule(t, schema)
	engine := kbase.NewEngine(schema, []kbase.Rule{rule}, memstore.New())

	if _, err := engine.Add(kbase.Fact{Entity: "winterfell", Attr: "precipitation_percent", Value: kbase.IntValue(60)}); err != nil {
		t.Fatalf("Add precipitation: %v", err)
	}
	if _, err := engine.Add(kbase.Fact{Entity: "winterfell", Attr: "temperature", Value: kbase.IntValue(-2)}); err != nil {
		t.Fatalf("Add temperature: %v", err)
	}

	weatherQuery, err := kbase.NewPredicate(schema, kbase.Clause{Entity: str("winterfell"), Attr: "weather", Value: strVar("w")})
	if err != nil {
		t.Fatalf("NewPredicate: %v", err)
	}
	ctxs, err := engine.Solve(weatherQuery, kbase.Now())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(ctxs) != 1 || ctxs[0]["w"].AsString() != "snow" {
		t.Fatalf("expected weather=snow, got %v", ctxs)
	}

	if _, err := engine.Add(kbase.Fact{Entity: "winterfell", Attr: "temperature", Value: kbase.IntValue(5)}); err != nil {
		t.Fatalf("Add warmer temperature: %v", err)
	}

	ctxs, err = engine.Solve(weatherQuery, kbase.Now())
	if err != nil {
		t.Fatalf("Solve after warming: %v", err)
	}
	if len(ctxs) != 0 {
		t.Fatalf("expected weather to be retracted once temperature rose above 0, got %v", ctxs)
	}
}

// Closure is deterministic regardless of insertion order - re-running the
// same facts through a fresh engine in reverse order must derive the
// same sibling closure.
func TestClosureIsOrderIndependent(t *testing.T) {
	schema := familySchema()
	facts := []kbase.Fact{
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "brother", Attr: "child_of", Value: kbase.StringValue("mother")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("father")},
		{Entity: "sister", Attr: "child_of", Value: kbase.StringValue("mother")},
	}

	solve := func(order []kbase.Fact) [][2]string {
		rule := siblingsRule(t, schema)
		engine := kbase.NewEngine(schema, []kbase.Rule{rule}, memstore.New())
		for _, f := range order {
			if _, err := engine.Add(f); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
		query, err := kbase.NewPredicate(schema, mustClause(t, schema, strVar("x"), "sibling_of", strVar("y")))
		if err != nil {
			t.Fatalf("NewPredicate: %v", err)
		}
		ctxs, err := engine.Solve(query, kbase.Now())
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		return contextPairs(t, ctxs, "x", "y")
	}

	forward := solve(facts)
	reversed := make([]kbase.Fact, len(facts))
	for i, f := range facts {
		reversed[len(facts)-1-i] = f
	}
	backward := solve(reversed)

	if diff := cmp.Diff(forward, backward); diff != "" {
		t.Errorf("closure depends on insertion order (-forward +backward):\n%s", diff)
	}
}
