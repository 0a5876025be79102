package domain

import (
	"fmt"
	"io"
	"strings"
)

// SourceKind identifies where an indexing payload comes from.
type SourceKind uint8

// Payload sources.
const (
	SourceNone SourceKind = iota
	SourceBytes
	SourceText
	SourceStream
	SourceCID
)

// String returns the source kind name.
func (k SourceKind) String() string {
	switch k {
	case SourceBytes:
		return "bytes"
	case SourceText:
		return "text"
	case SourceStream:
		return "stream"
	case SourceCID:
		return "cid"
	default:
		return "none"
	}
}

// Source is the payload of an indexing request: raw bytes, a string, a
// stream, or the CID of content already in the store.
type Source struct {
	kind   SourceKind
	bytes  []byte
	text   string
	reader io.Reader
	cid    string
}

// BytesSource wraps raw bytes.
func BytesSource(b []byte) Source { return Source{kind: SourceBytes, bytes: b} }

// TextSource wraps a string.
func TextSource(s string) Source { return Source{kind: SourceText, text: s} }

// StreamSource wraps a reader. The reader is consumed once.
func StreamSource(r io.Reader) Source { return Source{kind: SourceStream, reader: r} }

// CIDSource refers to content already stored.
func CIDSource(cid string) Source { return Source{kind: SourceCID, cid: cid} }

// Kind returns the source variant.
func (s Source) Kind() SourceKind { return s.kind }

// CID returns the content id of a CID source.
func (s Source) CID() string { return s.cid }

// Validate rejects missing payloads.
func (s Source) Validate() error {
	switch s.kind {
	case SourceBytes:
		if len(s.bytes) == 0 {
			return fmt.Errorf("%w: empty payload", ErrInvalidArgument)
		}
	case SourceText:
		if s.text == "" {
			return fmt.Errorf("%w: empty payload", ErrInvalidArgument)
		}
	case SourceStream:
		if s.reader == nil {
			return fmt.Errorf("%w: nil stream", ErrInvalidArgument)
		}
	case SourceCID:
		if strings.TrimSpace(s.cid) == "" {
			return fmt.Errorf("%w: content id is required", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: payload source is required", ErrInvalidArgument)
	}
	return nil
}

// ReadAll returns the payload of a bytes, text or stream source.
func (s Source) ReadAll() ([]byte, error) {
	switch s.kind {
	case SourceBytes:
		return s.bytes, nil
	case SourceText:
		return []byte(s.text), nil
	case SourceStream:
		if s.reader == nil {
			return nil, fmt.Errorf("%w: nil stream", ErrInvalidArgument)
		}
		b, err := io.ReadAll(s.reader)
		if err != nil {
			return nil, fmt.Errorf("%w: read stream: %v", ErrTechnical, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s source has no inline payload", ErrInvalidArgument, s.kind)
	}
}

// IndexingRequest asks for content to be stored, pinned and indexed.
type IndexingRequest struct {
	IndexName string

	// DocumentID is generated when empty.
	DocumentID string

	// ContentType is sniffed from the payload when empty.
	ContentType string

	Fields Fields

	// IndexContent copies the payload into the index document.
	IndexContent bool

	Source Source
}

// Validate checks the request before any backend is touched.
func (r IndexingRequest) Validate() error {
	if strings.TrimSpace(r.IndexName) == "" {
		return fmt.Errorf("%w: index name is required", ErrInvalidArgument)
	}
	if err := r.Source.Validate(); err != nil {
		return err
	}
	return r.Fields.Validate()
}
