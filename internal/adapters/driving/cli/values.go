package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

var operationAliases = map[string]domain.Operation{
	"text": domain.OpFullText,
	"eq":   domain.OpEquals,
	"ne":   domain.OpNotEquals,
	"has":  domain.OpContains,
}

// parseValue reads a command line literal. Quoted literals are always
// strings; otherwise null, booleans, numbers and dates are recognised.
func parseValue(s string) domain.Value {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return domain.String(s[1 : len(s)-1])
	}
	switch s {
	case "null":
		return domain.Null()
	case "true":
		return domain.Bool(true)
	case "false":
		return domain.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return domain.Number(f)
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Date(t)
		}
	}
	return domain.String(s)
}

// parseFields reads key=value pairs.
func parseFields(pairs []string) (domain.Fields, error) {
	fields := make(domain.Fields, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: field %q is not key=value", domain.ErrInvalidArgument, pair)
		}
		fields[key] = parseValue(value)
	}
	return fields, nil
}

// parseFilter reads "field:operation:value". Full text filters accept a
// comma separated field list; in filters a comma separated value list.
func parseFilter(s string) (domain.Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return domain.Filter{}, fmt.Errorf("%w: filter %q is not field:operation:value", domain.ErrInvalidArgument, s)
	}
	op, ok := operationAliases[strings.ToLower(parts[1])]
	if !ok {
		var err error
		if op, err = domain.ParseOperation(parts[1]); err != nil {
			return domain.Filter{}, err
		}
	}

	f := domain.Filter{Names: []string{parts[0]}, Operation: op}
	switch op {
	case domain.OpFullText:
		f.Names = strings.Split(parts[0], ",")
		f.Value = domain.String(parts[2])
	case domain.OpContains:
		f.Value = domain.String(parts[2])
	case domain.OpIn:
		items := strings.Split(parts[2], ",")
		values := make([]domain.Value, len(items))
		for i, item := range items {
			values[i] = parseValue(item)
		}
		f.Value = domain.Array(values...)
	default:
		f.Value = parseValue(parts[2])
	}
	if err := f.Validate(); err != nil {
		return domain.Filter{}, err
	}
	return f, nil
}

// buildQuery combines filter flags with an optional JSON query document.
func buildQuery(filters []string, text, queryJSON string) (*domain.Query, error) {
	q := domain.NewQuery()
	if queryJSON != "" {
		if err := decodeJSON(queryJSON, q); err != nil {
			return nil, fmt.Errorf("%w: query: %v", domain.ErrInvalidArgument, err)
		}
	}
	if text != "" {
		q.FullText(text, domain.FieldContent)
	}
	for _, s := range filters {
		f, err := parseFilter(s)
		if err != nil {
			return nil, err
		}
		q.Add(f)
	}
	return q, nil
}
