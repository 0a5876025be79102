package sqlite

import (
	"strings"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure Translator implements the interface.
var _ driven.QueryTranslator[Clause] = Translator{}

// Clause is a WHERE expression over the documents table with its bind
// arguments in placeholder order.
type Clause struct {
	SQL  string
	Args []any
}

// Translator compiles queries into SQL.
type Translator struct {
	IndexNull bool
}

type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "?"
}

// Translate compiles q. Invalid filters are skipped with a warning.
func (t Translator) Translate(q *domain.Query) Clause {
	b := &builder{}
	sql := t.query(b, q)
	return Clause{SQL: sql, Args: b.args}
}

func (t Translator) query(b *builder, q *domain.Query) string {
	if q.IsEmpty() {
		return "1 = 1"
	}

	var parts []string
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			logger.Warn("skipping filter %s: %v", f, err)
			continue
		}
		if bad := invalidName(f.Names); bad != "" {
			logger.Warn("skipping filter %s: unsupported field name %q", f, bad)
			continue
		}
		parts = append(parts, t.filter(b, f))
	}

	if len(q.Or) > 0 {
		alts := make([]string, len(q.Or))
		for i := range q.Or {
			alts[i] = "(" + t.query(b, &q.Or[i]) + ")"
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}

	if len(parts) == 0 {
		return "1 = 1"
	}
	return strings.Join(parts, " AND ")
}

func (t Translator) filter(b *builder, f domain.Filter) string {
	switch f.Operation {
	case domain.OpFullText:
		text, _ := f.Value.Str()
		alts := make([]string, len(f.Names))
		for i, name := range f.Names {
			alts[i] = anyOf(b, name, func(value, typ string) string {
				return typ + " = 'text' AND mahuta_phrase_prefix(" + value + ", " + b.arg(text) + ")"
			})
		}
		return "(" + strings.Join(alts, " OR ") + ")"

	case domain.OpEquals:
		return t.equals(b, f.Name(), f.Value)

	case domain.OpNotEquals:
		return "NOT " + t.equals(b, f.Name(), f.Value)

	case domain.OpContains:
		text, _ := f.Value.Str()
		return anyOf(b, f.Name(), func(value, typ string) string {
			return typ + " = 'text' AND mahuta_contains(" + value + ", " + b.arg(text) + ")"
		})

	case domain.OpIn:
		items := f.Value.Items()
		if len(items) == 0 {
			return "0 = 1"
		}
		return anyOf(b, f.Name(), func(value, typ string) string {
			conds := make([]string, len(items))
			for i, item := range items {
				if s, ok := item.Str(); ok {
					conds[i] = "(" + typ + " = 'text' AND lower(" + value + ") = lower(" + b.arg(s) + "))"
				} else {
					conds[i] = scalarEquals(b, value, typ, item)
				}
			}
			return strings.Join(conds, " OR ")
		})

	default:
		op := rangeOperators[f.Operation]
		bound := f.Value
		return anyOf(b, f.Name(), func(value, typ string) string {
			if s, ok := bound.Str(); ok {
				return typ + " = 'text' AND " + value + " " + op + " " + b.arg(s)
			}
			return typ + " IN ('integer', 'real') AND " + value + " " + op + " " + b.arg(bound.Interface())
		})
	}
}

var rangeOperators = map[domain.Operation]string{
	domain.OpLessThan:           "<",
	domain.OpLessThanOrEqual:    "<=",
	domain.OpGreaterThan:        ">",
	domain.OpGreaterThanOrEqual: ">=",
}

func (t Translator) equals(b *builder, name string, v domain.Value) string {
	v = domain.NullFilterValue(v, t.IndexNull)
	if v.IsNull() {
		switch name {
		case domain.FieldContentType:
			return "(documents.content_type IS NULL)"
		case domain.FieldContent:
			return "(documents.content IS NULL)"
		case domain.FieldHash, domain.FieldPinned:
			return "(0 = 1)"
		}
		return "(NOT EXISTS (SELECT 1 FROM json_each(documents.fields, " + b.arg(jsonPath(name)) + ") WHERE type <> 'null'))"
	}
	return anyOf(b, name, func(value, typ string) string {
		return scalarEquals(b, value, typ, v)
	})
}

func scalarEquals(b *builder, value, typ string, v domain.Value) string {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.Str()
		return "(" + typ + " = 'text' AND " + value + " = " + b.arg(s) + ")"
	case domain.KindBool:
		flag, _ := v.Boolean()
		n := 0
		if flag {
			n = 1
		}
		return "(" + typ + " IN ('true', 'false') AND " + value + " = " + b.arg(n) + ")"
	default:
		return "(" + typ + " IN ('integer', 'real') AND " + value + " = " + b.arg(v.Interface()) + ")"
	}
}

// anyOf matches when cond holds for the field value or, for arrays, for
// any element. cond receives SQL expressions for the element value and its
// JSON type.
func anyOf(b *builder, name string, cond func(value, typ string) string) string {
	switch name {
	case domain.FieldHash:
		return "(" + cond("documents.content_id", "'text'") + ")"
	case domain.FieldContentType:
		return "(documents.content_type IS NOT NULL AND " + cond("documents.content_type", "'text'") + ")"
	case domain.FieldContent:
		return "(documents.content IS NOT NULL AND " + cond("CAST(documents.content AS TEXT)", "'text'") + ")"
	case domain.FieldPinned:
		return "(" + cond("documents.pinned", "CASE WHEN documents.pinned THEN 'true' ELSE 'false' END") + ")"
	}
	path := b.arg(jsonPath(name))
	return "EXISTS (SELECT 1 FROM json_each(documents.fields, " + path + ") WHERE " + cond("value", "type") + ")"
}

// orderBy returns the sort expression for field.
func orderBy(b *builder, field string) string {
	switch field {
	case domain.FieldHash:
		return "documents.content_id"
	case domain.FieldContentType:
		return "documents.content_type"
	case domain.FieldPinned:
		return "documents.pinned"
	case domain.FieldContent:
		return "documents.content"
	}
	return "json_extract(documents.fields, " + b.arg(jsonPath(field)) + ")"
}

func jsonPath(name string) string {
	return `$."` + name + `"`
}

// invalidName returns the first name that cannot be embedded in a JSON path.
func invalidName(names []string) string {
	for _, name := range names {
		if strings.ContainsAny(name, "\"\\") {
			return name
		}
	}
	return ""
}
