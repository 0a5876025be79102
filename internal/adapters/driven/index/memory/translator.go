package memory

import (
	"strings"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure Translator implements the interface.
var _ driven.QueryTranslator[Predicate] = Translator{}

// Predicate reports whether a document matches.
type Predicate func(doc domain.Metadata) bool

func matchAll(domain.Metadata) bool { return true }

// Translator compiles queries into predicates.
type Translator struct {
	// IndexNull mirrors the write-side null handling so that equals(null)
	// finds documents stored with the null token.
	IndexNull bool
}

// Translate compiles q. Invalid filters are skipped with a warning.
func (t Translator) Translate(q *domain.Query) Predicate {
	if q.IsEmpty() {
		return matchAll
	}

	var preds []Predicate
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			logger.Warn("skipping filter %s: %v", f, err)
			continue
		}
		preds = append(preds, t.filter(f))
	}

	var alternatives []Predicate
	for i := range q.Or {
		alternatives = append(alternatives, t.Translate(&q.Or[i]))
	}

	return func(doc domain.Metadata) bool {
		for _, p := range preds {
			if !p(doc) {
				return false
			}
		}
		if len(alternatives) == 0 {
			return true
		}
		for _, alt := range alternatives {
			if alt(doc) {
				return true
			}
		}
		return false
	}
}

func (t Translator) filter(f domain.Filter) Predicate {
	switch f.Operation {
	case domain.OpFullText:
		text, _ := f.Value.Str()
		return func(doc domain.Metadata) bool {
			for _, name := range f.Names {
				v, _ := fieldValue(doc, name)
				for _, item := range v.Items() {
					if s, ok := item.Str(); ok && domain.MatchPhrasePrefix(s, text) {
						return true
					}
				}
			}
			return false
		}

	case domain.OpEquals:
		want := domain.NullFilterValue(f.Value, t.IndexNull)
		return func(doc domain.Metadata) bool {
			return equals(doc, f.Name(), want)
		}

	case domain.OpNotEquals:
		want := domain.NullFilterValue(f.Value, t.IndexNull)
		return func(doc domain.Metadata) bool {
			return !equals(doc, f.Name(), want)
		}

	case domain.OpContains:
		text, _ := f.Value.Str()
		return func(doc domain.Metadata) bool {
			v, _ := fieldValue(doc, f.Name())
			for _, item := range v.Items() {
				if s, ok := item.Str(); ok && domain.ContainsTokens(s, text) {
					return true
				}
			}
			return false
		}

	case domain.OpIn:
		candidates := f.Value.Items()
		return func(doc domain.Metadata) bool {
			v, _ := fieldValue(doc, f.Name())
			for _, item := range v.Items() {
				for _, c := range candidates {
					if sameValue(item, c, true) {
						return true
					}
				}
			}
			return false
		}

	default:
		op, bound := f.Operation, f.Value
		return func(doc domain.Metadata) bool {
			v, _ := fieldValue(doc, f.Name())
			for _, item := range v.Items() {
				c, ok := domain.Compare(item, bound)
				if ok && inRange(op, c) {
					return true
				}
			}
			return false
		}
	}
}

func inRange(op domain.Operation, c int) bool {
	switch op {
	case domain.OpLessThan:
		return c < 0
	case domain.OpLessThanOrEqual:
		return c <= 0
	case domain.OpGreaterThan:
		return c > 0
	case domain.OpGreaterThanOrEqual:
		return c >= 0
	}
	return false
}

// equals matches any element of the field. A null want matches an absent
// or null field.
func equals(doc domain.Metadata, name string, want domain.Value) bool {
	v, ok := fieldValue(doc, name)
	if want.IsNull() {
		return !ok || v.IsNull()
	}
	for _, item := range v.Items() {
		if sameValue(item, want, false) {
			return true
		}
	}
	return false
}

func sameValue(a, b domain.Value, foldCase bool) bool {
	if as, ok := a.Str(); ok {
		if bs, ok := b.Str(); ok {
			if foldCase {
				return strings.EqualFold(as, bs)
			}
			return as == bs
		}
		return false
	}
	if c, ok := domain.Compare(a, b); ok {
		return c == 0
	}
	return a.Equal(b)
}

// fieldValue resolves user fields and the reserved attributes.
func fieldValue(doc domain.Metadata, name string) (domain.Value, bool) {
	switch name {
	case domain.FieldHash:
		return domain.String(doc.ContentID), doc.ContentID != ""
	case domain.FieldContentType:
		if doc.ContentType == "" {
			return domain.Null(), false
		}
		return domain.String(doc.ContentType), true
	case domain.FieldPinned:
		return domain.Bool(doc.Pinned), true
	case domain.FieldContent:
		if doc.Content == nil {
			return domain.Null(), false
		}
		return domain.String(string(doc.Content)), true
	}
	v, ok := doc.Fields[name]
	return v, ok
}
