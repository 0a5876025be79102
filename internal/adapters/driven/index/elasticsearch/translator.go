package elasticsearch

import (
	"strings"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure Translator implements the interface.
var _ driven.QueryTranslator[DSL] = Translator{}

// DSL is an Elasticsearch query object.
type DSL = map[string]any

// Sub-fields added to every dynamically mapped string field.
const (
	rawField   = ".raw"
	lowerField = ".lower"
)

// Translator compiles queries into the query DSL.
type Translator struct {
	IndexNull bool
}

// Translate compiles q. Invalid filters are skipped with a warning.
func (t Translator) Translate(q *domain.Query) DSL {
	if q.IsEmpty() {
		return DSL{"match_all": DSL{}}
	}

	var must, mustNot []any
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			logger.Warn("skipping filter %s: %v", f, err)
			continue
		}
		clause, negate := t.filter(f)
		if negate {
			mustNot = append(mustNot, clause)
		} else {
			must = append(must, clause)
		}
	}

	if len(q.Or) > 0 {
		should := make([]any, len(q.Or))
		for i := range q.Or {
			should[i] = t.Translate(&q.Or[i])
		}
		must = append(must, DSL{"bool": DSL{"should": should, "minimum_should_match": 1}})
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return DSL{"match_all": DSL{}}
	}
	b := DSL{}
	if len(must) > 0 {
		b["must"] = must
	}
	if len(mustNot) > 0 {
		b["must_not"] = mustNot
	}
	return DSL{"bool": b}
}

// filter returns the clause for f and whether it belongs in must_not.
func (t Translator) filter(f domain.Filter) (DSL, bool) {
	name := f.Name()
	switch f.Operation {
	case domain.OpFullText:
		text, _ := f.Value.Str()
		return DSL{"multi_match": DSL{"query": text, "type": "phrase_prefix", "fields": f.Names}}, false

	case domain.OpEquals:
		return t.equals(name, f.Value)

	case domain.OpNotEquals:
		clause, negate := t.equals(name, f.Value)
		if negate {
			return DSL{"exists": DSL{"field": name}}, false
		}
		return clause, true

	case domain.OpContains:
		text, _ := f.Value.Str()
		return DSL{"match": DSL{name: DSL{"query": text, "operator": "and"}}}, false

	case domain.OpIn:
		var strs, others []any
		for _, item := range f.Value.Items() {
			if s, ok := item.Str(); ok {
				strs = append(strs, strings.ToLower(s))
			} else {
				others = append(others, item.Interface())
			}
		}
		var should []any
		if len(strs) > 0 {
			should = append(should, DSL{"terms": DSL{keywordField(name, lowerField): strs}})
		}
		if len(others) > 0 {
			should = append(should, DSL{"terms": DSL{name: others}})
		}
		if should == nil {
			// Empty list.
			return DSL{"match_none": DSL{}}, false
		}
		return DSL{"bool": DSL{"should": should, "minimum_should_match": 1}}, false

	default:
		field := name
		if f.Value.Kind() == domain.KindString {
			field = keywordField(name, rawField)
		}
		return DSL{"range": DSL{field: DSL{rangeOperators[f.Operation]: f.Value.Interface()}}}, false
	}
}

var rangeOperators = map[domain.Operation]string{
	domain.OpLessThan:           "lt",
	domain.OpLessThanOrEqual:    "lte",
	domain.OpGreaterThan:        "gt",
	domain.OpGreaterThanOrEqual: "gte",
}

// equals returns a term clause, or an exists clause to negate when matching
// a null that is not indexed.
func (t Translator) equals(name string, v domain.Value) (DSL, bool) {
	v = domain.NullFilterValue(v, t.IndexNull)
	if v.IsNull() {
		return DSL{"exists": DSL{"field": name}}, true
	}
	field := name
	if v.Kind() == domain.KindString {
		field = keywordField(name, rawField)
	}
	return DSL{"term": DSL{field: v.Interface()}}, false
}

// keywordField returns the exact-match field for a string comparison.
// Reserved fields are mapped as keywords already.
func keywordField(name, sub string) string {
	switch name {
	case domain.FieldHash, domain.FieldContentType:
		if sub == lowerField {
			return name + sub
		}
		return name
	}
	return name + sub
}
