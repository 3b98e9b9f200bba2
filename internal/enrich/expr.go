package enrich

import (
	"reflect"
	"strings"
)

// Expr is a condition over a snapshot. The concrete types are FieldPath,
// Predicate, All, Any and Not.
type Expr interface {
	isExpr()
}

// Predicate is a custom condition. A panicking predicate evaluates to false.
type Predicate struct {
	// Name is used by Describe only.
	Name string
	Fn   func(EnrichedData) bool
}

// All is a conjunction. An empty All is true.
type All []Expr

// Any is a disjunction. An empty Any is false.
type Any []Expr

// Not negates X.
type Not struct {
	X Expr
}

func (FieldPath) isExpr() {}
func (Predicate) isExpr() {}
func (All) isExpr()       {}
func (Any) isExpr()       {}
func (Not) isExpr()       {}

// Evaluate reports whether expr holds for the snapshot. It never panics.
// A nil expression holds.
func Evaluate(d EnrichedData, expr Expr) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case FieldPath:
		return IsMeaningful(GetFieldValue(d, e))
	case Predicate:
		return callPredicate(d, e)
	case All:
		for _, sub := range e {
			if !Evaluate(d, sub) {
				return false
			}
		}
		return true
	case Any:
		for _, sub := range e {
			if Evaluate(d, sub) {
				return true
			}
		}
		return false
	case Not:
		return !Evaluate(d, e.X)
	default:
		return false
	}
}

func callPredicate(d EnrichedData, p Predicate) (ok bool) {
	if p.Fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return p.Fn(d.Clone())
}

// IsMeaningful is the presence rule: nil is absent, strings must be non-blank,
// slices non-empty. Anything else counts as present.
func IsMeaningful(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case *string:
		return x != nil && strings.TrimSpace(*x) != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return false
		}
	}
	return true
}

// Describe renders expr for logs.
func Describe(expr Expr) string {
	switch e := expr.(type) {
	case nil:
		return "always"
	case FieldPath:
		return string(e)
	case Predicate:
		if e.Name == "" {
			return "custom()"
		}
		return "custom(" + e.Name + ")"
	case All:
		return "all(" + describeList(e) + ")"
	case Any:
		return "any(" + describeList(e) + ")"
	case Not:
		return "not(" + Describe(e.X) + ")"
	default:
		return "unknown"
	}
}

func describeList(exprs []Expr) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, Describe(e))
	}
	return strings.Join(parts, ", ")
}

// ExtractFieldPaths returns the distinct leaf paths expr reads, in first-seen
// order. Predicates contribute nothing.
func ExtractFieldPaths(expr Expr) []FieldPath {
	var out []FieldPath
	seen := make(map[FieldPath]struct{})
	var walk func(Expr)
	walk = func(expr Expr) {
		switch e := expr.(type) {
		case FieldPath:
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		case All:
			for _, sub := range e {
				walk(sub)
			}
		case Any:
			for _, sub := range e {
				walk(sub)
			}
		case Not:
			walk(e.X)
		}
	}
	walk(expr)
	return out
}
