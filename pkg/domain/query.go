package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Op is a filter comparison.
type Op string

// Supported filter operators.
const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains" // array field contains value
)

// Filter is a single predicate on a top-level field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts by a top-level field.
type Order struct {
	Field string
	Desc  bool
}

// Query selects, orders and paginates documents of one collection. Documents
// that tie on every order key keep creation order.
type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
	Offset  int
}

// Where builds a filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// EqualityFilters returns the OpEq filters, which backends may push down.
func (q Query) EqualityFilters() []Filter {
	var out []Filter
	for _, f := range q.Filters {
		if f.Op == OpEq {
			out = append(out, f)
		}
	}
	return out
}

// Apply filters, sorts and paginates docs in process. Backends that cannot
// evaluate a query natively hand their candidate set to Apply.
func (q Query) Apply(docs []Document) ([]Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		matched := true
		for _, f := range filters {
			ok, err := f.matches(doc.Fields)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, doc)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareValues(out[i].Fields[o.Field], out[j].Fields[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []Document{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f Filter) matches(fields Fields) (bool, error) {
	actual, present := fields[f.Field]
	switch f.Op {
	case OpEq:
		return present && compareValues(actual, f.Value) == 0, nil
	case OpNe:
		return !present || compareValues(actual, f.Value) != 0, nil
	case OpLt:
		return present && actual != nil && compareValues(actual, f.Value) < 0, nil
	case OpLte:
		return present && actual != nil && compareValues(actual, f.Value) <= 0, nil
	case OpGt:
		return present && actual != nil && compareValues(actual, f.Value) > 0, nil
	case OpGte:
		return present && actual != nil && compareValues(actual, f.Value) >= 0, nil
	case OpContains:
		items, ok := actual.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range items {
			if compareValues(item, f.Value) == 0 {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

// normalizeValue maps caller values onto the JSON value space stored
// documents use, so typed strings, ints and times compare with decoded fields.
func normalizeValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, float64, bool:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeFields round-trips fields through JSON so every backend stores
// and returns the same value space.
func NormalizeFields(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// compareValues orders nil < bool < number < string. Strings holding
// RFC 3339 timestamps compare chronologically.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		if ta, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if tb, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return ta.Compare(tb)
			}
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
