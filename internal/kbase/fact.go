package kbase

// Fact is a single ground triple asserting one atomic relation.
type Fact struct {
	Entity string
	Attr   string
	Value  Ordinal
}

// Equal reports whether two facts denote the same triple.
func (f Fact) Equal(other Fact) bool {
	return f.Entity == other.Entity && f.Attr == other.Attr && f.Value.Equal(other.Value)
}

// Context is a variable binding: a partial map from variable name to the
// ordinal it has been bound to.
type Context map[string]Ordinal

// pluck reads name from every context in contexts. It returns ok=false if
// any context is missing the name (the variable is not yet bound
// everywhere), which is the key to set-at-a-time substitution.
func pluck(contexts []Context, name string) (values []Ordinal, ok bool) {
	seen := make(map[Ordinal]bool)
	for _, ctx := range contexts {
		v, present := ctx[name]
		if !present {
			return nil, false
		}
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	return values, true
}

// mergeContexts unions two micro-contexts, returning ok=false if they
// disagree on any shared key.
func mergeContexts(a, b Context) (Context, bool) {
	out := make(Context, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, present := out[k]; present && !existing.Equal(v) {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}
