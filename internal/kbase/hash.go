package kbase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash128 is a stable 128-bit content hash, hex-encoded. Used for rule
// ids and justification hashes per spec §6.1.
type Hash128 string

// canonicalFact renders a fact in the canonical encoding spec §6.1
// requires for hashing: fact:(e,a,type:v).
func canonicalFact(f Fact) string {
	var v string
	switch f.Value.Type() {
	case StringType:
		v = fmt.Sprintf("string:%s", f.Value.AsString())
	case IntType:
		v = fmt.Sprintf("int:%d", f.Value.AsInt())
	case FloatType:
		v = fmt.Sprintf("float:%v", f.Value.AsFloat())
	default:
		v = "unknown:"
	}
	return fmt.Sprintf("fact:(%s,%s,%s)", f.Entity, f.Attr, v)
}

// HashFacts computes the content hash of a set of facts, sorted before
// hashing so the result is independent of iteration order.
func HashFacts(facts map[Fact]struct{}) Hash128 {
	lines := make([]string, 0, len(facts))
	for f := range facts {
		lines = append(lines, canonicalFact(f))
	}
	sort.Strings(lines)
	return hashString(strings.Join(lines, "\n"))
}

// hashString truncates a sha256 digest to the first 16 bytes (128 bits),
// hex encoded, per spec §6.1's "any stable 128-bit variant" allowance.
func hashString(s string) Hash128 {
	sum := sha256.Sum256([]byte(s))
	return Hash128(hex.EncodeToString(sum[:16]))
}

// HashRule computes the stable rule id: a content hash over the rule's
// canonical textual form (name, body, head). Stable across process
// restarts since it is referenced as a foreign key by justification rows.
func HashRule(r Rule) Hash128 {
	var b strings.Builder
	b.WriteString("rule:")
	b.WriteString(r.Name)
	b.WriteString("\nbody:\n")
	for _, c := range r.Body.Clauses {
		b.WriteString(canonicalClause(c))
		b.WriteByte('\n')
	}
	b.WriteString("head:\n")
	for _, c := range r.Head.Clauses {
		b.WriteString(canonicalClause(c))
		b.WriteByte('\n')
	}
	return hashString(b.String())
}

func canonicalClause(c Clause) string {
	return fmt.Sprintf("(%s,%s,%s)", canonicalExpr(c.Entity), c.Attr, canonicalExpr(c.Value))
}

func canonicalExpr(e Expr) string {
	switch x := e.(type) {
	case Const:
		return canonicalOrdinal(x.Value)
	case Var:
		return fmt.Sprintf("?%s:%s", x.Name, x.Type)
	case In:
		vals := make([]string, 0, len(x.Values))
		for _, v := range x.Values {
			vals = append(vals, canonicalOrdinal(v))
		}
		sort.Strings(vals)
		return fmt.Sprintf("?%s:%s in {%s}", x.Name, x.Type, strings.Join(vals, ","))
	case Any:
		return fmt.Sprintf("_:%s", x.Type)
	case Cmp:
		return fmt.Sprintf("(%s %s %s)", canonicalExpr(x.Left), x.Op, canonicalExpr(x.Right))
	case And:
		return fmt.Sprintf("(%s && %s)", canonicalExpr(x.Left), canonicalExpr(x.Right))
	default:
		return "?"
	}
}

func canonicalOrdinal(v Ordinal) string {
	switch v.Type() {
	case StringType:
		return fmt.Sprintf("string:%s", v.AsString())
	case IntType:
		return fmt.Sprintf("int:%d", v.AsInt())
	case FloatType:
		return fmt.Sprintf("float:%v", v.AsFloat())
	default:
		return "unknown:"
	}
}

// JustificationHash computes the content hash over the sorted set of
// supporting facts for one derivation.
func JustificationHash(justification map[Fact]struct{}) Hash128 {
	return HashFacts(justification)
}

// DerivedFactHash computes the content hash of a single derived fact, used
// as the third key component of a justification row.
func DerivedFactHash(f Fact) Hash128 {
	return hashString(canonicalFact(f))
}
