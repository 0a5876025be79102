package driven

import (
	"context"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// IndexBackend persists and searches index documents keyed by
// (index name, document id).
type IndexBackend interface {
	// CreateIndex creates an index, applying mapping when given.
	// Creating an existing index is a no-op.
	CreateIndex(ctx context.Context, name string, mapping []byte) error

	// Indexes lists index names.
	Indexes(ctx context.Context) ([]string, error)

	// Index upserts a document and returns its id, generating one when
	// doc.DocumentID is empty. Fields of an existing document are replaced.
	Index(ctx context.Context, doc domain.Metadata) (string, error)

	// UpdateField sets one field without touching the others. Reserved
	// fields update the matching Metadata attribute.
	// Returns domain.ErrNotFound if the document does not exist.
	UpdateField(ctx context.Context, indexName, documentID, field string, value domain.Value) error

	// Get returns a document.
	// Returns domain.ErrNotFound if the document does not exist.
	Get(ctx context.Context, indexName, documentID string) (domain.Metadata, error)

	// Search returns one page of documents matching query. An empty
	// indexName searches every index; a nil query matches everything.
	Search(ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest) (domain.Page[domain.Metadata], error)

	// Count returns the number of documents matching query.
	Count(ctx context.Context, indexName string, query *domain.Query) (int64, error)

	// Deindex removes a document.
	// Returns domain.ErrNotFound if the document does not exist.
	Deindex(ctx context.Context, indexName, documentID string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// QueryTranslator converts a query into a backend's native form N.
// Malformed clauses are skipped rather than failing the whole query.
type QueryTranslator[N any] interface {
	Translate(query *domain.Query) N
}
