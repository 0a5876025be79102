package domain

import (
	"fmt"
	"strings"
)

// Operation is a filter clause operator.
type Operation string

// Supported operations.
const (
	// OpFullText matches a phrase prefix across one or more fields.
	OpFullText Operation = "full_text"

	// OpEquals matches an exact scalar value.
	OpEquals Operation = "equals"

	// OpNotEquals excludes an exact scalar value.
	OpNotEquals Operation = "not_equals"

	// OpContains matches a token within a text field.
	OpContains Operation = "contains"

	// OpIn matches any member of a value list.
	OpIn Operation = "in"

	OpLessThan           Operation = "lt"
	OpLessThanOrEqual    Operation = "lte"
	OpGreaterThan        Operation = "gt"
	OpGreaterThanOrEqual Operation = "gte"
)

// Operations returns every supported operation.
func Operations() []Operation {
	return []Operation{
		OpFullText, OpEquals, OpNotEquals, OpContains, OpIn,
		OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual,
	}
}

// IsValid returns true if the operation is recognised.
func (o Operation) IsValid() bool {
	switch o {
	case OpFullText, OpEquals, OpNotEquals, OpContains, OpIn,
		OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return true
	default:
		return false
	}
}

// IsRange returns true for the lt/lte/gt/gte bounds.
func (o Operation) IsRange() bool {
	switch o {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (o Operation) String() string {
	return string(o)
}

// ParseOperation parses an operation name, ignoring case.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if !op.IsValid() {
		return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, s)
	}
	return op, nil
}

// Filter is a single query clause.
type Filter struct {
	// Names lists the fields the clause applies to. Only full_text accepts
	// more than one.
	Names []string `json:"names"`

	Operation Operation `json:"operation"`

	Value Value `json:"value"`
}

// Name returns the first field name.
func (f Filter) Name() string {
	if len(f.Names) == 0 {
		return ""
	}
	return f.Names[0]
}

// Validate checks the clause is well formed for its operation.
func (f Filter) Validate() error {
	if !f.Operation.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidArgument, f.Operation)
	}
	if len(f.Names) == 0 {
		return fmt.Errorf("%w: %s filter without field", ErrInvalidArgument, f.Operation)
	}
	for _, name := range f.Names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s filter with empty field name", ErrInvalidArgument, f.Operation)
		}
	}
	if f.Operation != OpFullText && len(f.Names) > 1 {
		return fmt.Errorf("%w: %s filter accepts a single field", ErrInvalidArgument, f.Operation)
	}

	switch {
	case f.Operation == OpFullText || f.Operation == OpContains:
		if s, ok := f.Value.Str(); !ok || s == "" {
			return fmt.Errorf("%w: %s filter requires text", ErrInvalidArgument, f.Operation)
		}
	case f.Operation == OpIn:
		if f.Value.Kind() != KindArray {
			return fmt.Errorf("%w: in filter requires a list", ErrInvalidArgument)
		}
	case f.Operation.IsRange():
		switch f.Value.Kind() {
		case KindNumber, KindDate, KindString:
		default:
			return fmt.Errorf("%w: %s filter requires a number, date or string bound",
				ErrInvalidArgument, f.Operation)
		}
	default:
		if f.Value.Kind() == KindArray {
			return fmt.Errorf("%w: %s filter requires a scalar", ErrInvalidArgument, f.Operation)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", strings.Join(f.Names, ","), f.Operation, f.Value)
}

// Query is a conjunction of filters. When Or holds alternatives, at least one
// of them must also match. An empty query matches every document.
type Query struct {
	Filters []Filter `json:"filters,omitempty"`
	Or      []Query  `json:"or,omitempty"`
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{}
}

// IsEmpty reports whether the query has no clauses.
func (q *Query) IsEmpty() bool {
	return q == nil || (len(q.Filters) == 0 && len(q.Or) == 0)
}

// Add appends a filter.
func (q *Query) Add(f Filter) *Query {
	q.Filters = append(q.Filters, f)
	return q
}

// FullText matches text as a phrase prefix across the named fields.
func (q *Query) FullText(text string, names ...string) *Query {
	return q.Add(Filter{Names: names, Operation: OpFullText, Value: String(text)})
}

// Equals matches documents whose field equals v. A null v matches documents
// where the field is absent or null.
func (q *Query) Equals(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpEquals, Value: v})
}

// NotEquals excludes documents whose field equals v.
func (q *Query) NotEquals(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpNotEquals, Value: v})
}

// Contains matches documents whose text field holds the token.
func (q *Query) Contains(name, token string) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpContains, Value: String(token)})
}

// In matches documents whose field equals any of values.
func (q *Query) In(name string, values ...Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpIn, Value: Array(values...)})
}

func (q *Query) LessThan(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpLessThan, Value: v})
}

func (q *Query) LessThanOrEqual(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpLessThanOrEqual, Value: v})
}

func (q *Query) GreaterThan(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpGreaterThan, Value: v})
}

func (q *Query) GreaterThanOrEqual(name string, v Value) *Query {
	return q.Add(Filter{Names: []string{name}, Operation: OpGreaterThanOrEqual, Value: v})
}

// AnyOf adds alternatives of which at least one must match.
func (q *Query) AnyOf(alternatives ...*Query) *Query {
	for _, alt := range alternatives {
		if alt != nil {
			q.Or = append(q.Or, *alt)
		}
	}
	return q
}
