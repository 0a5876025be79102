package domain

import (
	"fmt"
	"strings"
)

// Reserved index fields. User field maps must not use these names.
const (
	FieldHash        = "__hash"
	FieldContentType = "__content_type"
	FieldContent     = "__content"
	FieldPinned      = "__pinned"
)

// NullValue is the token written in place of null or empty values when
// null indexing is enabled.
const NullValue = "null"

// ReservedFields returns the reserved field names.
func ReservedFields() []string {
	return []string{FieldHash, FieldContentType, FieldContent, FieldPinned}
}

// IsReserved reports whether name is a reserved field.
func IsReserved(name string) bool {
	switch name {
	case FieldHash, FieldContentType, FieldContent, FieldPinned:
		return true
	default:
		return false
	}
}

// NormalizeIndexName lower-cases and trims an index name. Index names are
// case-insensitive.
func NormalizeIndexName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Metadata is the index record of a piece of content.
type Metadata struct {
	IndexName   string
	DocumentID  string
	ContentID   string
	ContentType string

	// Content is a copy of the payload, set when content indexing is on.
	Content []byte

	// Pinned is false while asynchronous pinning has not confirmed the
	// content on every replica.
	Pinned bool

	Fields Fields
}

// Validate checks the record can be written to an index.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.IndexName) == "" {
		return fmt.Errorf("%w: index name is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(m.ContentID) == "" {
		return fmt.Errorf("%w: content id is required", ErrInvalidArgument)
	}
	return m.Fields.Validate()
}

// SetField writes one field. Reserved names update the matching attribute;
// other names go through the same null handling as a full write.
func (m *Metadata) SetField(name string, v Value, indexNull bool) error {
	switch name {
	case FieldHash:
		s, ok := v.Str()
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidArgument, name)
		}
		m.ContentID = s
	case FieldContentType:
		if v.IsNull() {
			m.ContentType = ""
		} else {
			m.ContentType = v.Text()
		}
	case FieldPinned:
		b, ok := v.Boolean()
		if !ok {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidArgument, name)
		}
		m.Pinned = b
	case FieldContent:
		if v.IsNull() {
			m.Content = nil
		} else {
			m.Content = []byte(v.Text())
		}
	default:
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: field name is required", ErrInvalidArgument)
		}
		prepared := HandleNullValues(Fields{name: v}, indexNull)
		if m.Fields == nil {
			m.Fields = Fields{}
		}
		if pv, ok := prepared[name]; ok {
			m.Fields[name] = pv
		} else {
			delete(m.Fields, name)
		}
	}
	return nil
}

// MetadataAndPayload is a record optionally hydrated with its payload.
type MetadataAndPayload struct {
	Metadata

	// Payload is nil unless the payload was loaded.
	Payload []byte
}

// HasPayload reports whether the payload was loaded.
func (m MetadataAndPayload) HasPayload() bool {
	return m.Payload != nil
}

// HandleNullValues prepares fields for writing. With null indexing on, null
// and empty-string values become NullValue so they stay queryable. With it
// off, null values are dropped.
func HandleNullValues(fields Fields, indexNull bool) Fields {
	out := make(Fields, len(fields))
	for name, v := range fields {
		switch {
		case indexNull && v.IsEmpty():
			out[name] = String(NullValue)
		case !indexNull && v.IsNull():
		default:
			out[name] = v
		}
	}
	return out
}

// NullFilterValue maps a filter value the way HandleNullValues maps a field
// value, so equals(field, null) finds documents written with the null token.
func NullFilterValue(v Value, indexNull bool) Value {
	if indexNull && v.IsEmpty() {
		return String(NullValue)
	}
	return v
}
