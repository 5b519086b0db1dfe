package knowledge

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Metadata fields the corpus is indexed by.
const (
	FieldChapter         = "chapter"
	FieldSection         = "section"
	FieldDiscourseNumber = "vachanamrut_no"
)

// Clause is a single equality predicate over passage metadata.
type Clause struct {
	Field string
	Value any
}

func (c Clause) String() string {
	return fmt.Sprintf("%s=%v", c.Field, c.Value)
}

// Filter restricts a search to a subset of the corpus. A nil *Filter means
// no restriction. A filter holds either one clause or a conjunction of two
// or more clauses.
type Filter struct {
	clauses []Clause
}

// NewFilter builds the narrowest filter for the given clauses: nil when none
// is given, a single clause for one and a conjunction otherwise.
func NewFilter(clauses ...Clause) *Filter {
	if len(clauses) == 0 {
		return nil
	}
	out := make([]Clause, len(clauses))
	copy(out, clauses)
	return &Filter{clauses: out}
}

// Equal builds a single-clause filter.
func Equal(field string, value any) *Filter {
	return NewFilter(Clause{Field: field, Value: value})
}

// Clauses returns a copy of the filter clauses.
func (f *Filter) Clauses() []Clause {
	if f == nil {
		return nil
	}
	out := make([]Clause, len(f.clauses))
	copy(out, f.clauses)
	return out
}

// IsConjunction reports whether the filter is an AND of several clauses.
func (f *Filter) IsConjunction() bool {
	return f != nil && len(f.clauses) > 1
}

// Matches evaluates the filter against passage metadata.
func (f *Filter) Matches(metadata map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.clauses {
		v, ok := metadata[c.Field]
		if !ok || !valuesEqual(v, c.Value) {
			return false
		}
	}
	return true
}

func (f *Filter) String() string {
	if f == nil {
		return "<none>"
	}
	parts := make([]string, len(f.clauses))
	for i, c := range f.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// MarshalJSON encodes the filter in the where-document shape
// {"field": value} or {"$and": [{...}, {...}]}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	if len(f.clauses) == 1 {
		return json.Marshal(map[string]any{f.clauses[0].Field: f.clauses[0].Value})
	}
	items := make([]map[string]any, len(f.clauses))
	for i, c := range f.clauses {
		items[i] = map[string]any{c.Field: c.Value}
	}
	return json.Marshal(map[string]any{"$and": items})
}

// valuesEqual compares scalars loosely so that JSON-decoded numbers match ints.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
