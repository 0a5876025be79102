// Package repository maps typed entities onto Mahuta documents.
//
// An entity is stored as its JSON encoding. A Mapping lists which entity
// attributes become index fields and which of them take part in full text
// search, and how the document id and content hash are read and written
// back.
package repository

import (
	"fmt"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// Role tells how a mapped attribute is used.
type Role int

const (
	// RoleIndexed attributes are written as index fields.
	RoleIndexed Role = iota

	// RoleFullText attributes are indexed and searched by FullTextSearch.
	RoleFullText
)

// Field projects one entity attribute to an index field.
type Field[E any] struct {
	Name  string
	Role  Role
	Value func(E) domain.Value
}

// Mapping describes how entities of type E are stored.
type Mapping[E any] struct {
	IndexName string

	// ID reads the document id. An empty id is generated on save and
	// written back through SetID.
	ID    func(E) string
	SetID func(*E, string)

	// SetHash, when set, receives the content id after a save or a load.
	SetHash func(*E, string)

	Fields []Field[E]
}

// NewMapping starts a mapping for indexName.
func NewMapping[E any](indexName string) *Mapping[E] {
	return &Mapping[E]{IndexName: indexName}
}

// WithID sets the id accessors.
func (m *Mapping[E]) WithID(get func(E) string, set func(*E, string)) *Mapping[E] {
	m.ID = get
	m.SetID = set
	return m
}

// WithHash sets the content id setter.
func (m *Mapping[E]) WithHash(set func(*E, string)) *Mapping[E] {
	m.SetHash = set
	return m
}

// Indexed maps an attribute to an index field.
func (m *Mapping[E]) Indexed(name string, value func(E) domain.Value) *Mapping[E] {
	m.Fields = append(m.Fields, Field[E]{Name: name, Role: RoleIndexed, Value: value})
	return m
}

// FullText maps an attribute to an index field searched by full text.
func (m *Mapping[E]) FullText(name string, value func(E) domain.Value) *Mapping[E] {
	m.Fields = append(m.Fields, Field[E]{Name: name, Role: RoleFullText, Value: value})
	return m
}

// Validate checks the mapping is usable.
func (m *Mapping[E]) Validate() error {
	if domain.NormalizeIndexName(m.IndexName) == "" {
		return fmt.Errorf("%w: mapping without index name", domain.ErrInvalidArgument)
	}
	if m.ID == nil || m.SetID == nil {
		return fmt.Errorf("%w: mapping for %s without id accessors", domain.ErrInvalidArgument, m.IndexName)
	}
	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" || f.Value == nil {
			return fmt.Errorf("%w: mapping for %s has an incomplete field", domain.ErrInvalidArgument, m.IndexName)
		}
		if domain.IsReserved(f.Name) {
			return fmt.Errorf("%w: field %q is reserved", domain.ErrInvalidArgument, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: field %q mapped twice", domain.ErrInvalidArgument, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// fields returns the index fields of e merged over extra.
func (m *Mapping[E]) fields(e E, extra domain.Fields) domain.Fields {
	out := extra.Clone()
	if out == nil {
		out = make(domain.Fields, len(m.Fields))
	}
	for _, f := range m.Fields {
		out[f.Name] = f.Value(e)
	}
	return out
}

// fullTextNames returns the names of the full text fields.
func (m *Mapping[E]) fullTextNames() []string {
	var names []string
	for _, f := range m.Fields {
		if f.Role == RoleFullText {
			names = append(names, f.Name)
		}
	}
	return names
}
