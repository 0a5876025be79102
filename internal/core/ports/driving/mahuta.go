package driving

import (
	"context"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// MahutaService stores content, pins it and indexes its metadata, and
// resolves lookups and searches back to the content.
type MahutaService interface {
	// CreateIndex creates an index if it does not exist.
	CreateIndex(ctx context.Context, name string, mapping []byte) error

	// Indexes lists index names.
	Indexes(ctx context.Context) ([]string, error)

	// Index stores the request payload (unless it is a CID), pins it and
	// indexes its metadata.
	Index(ctx context.Context, req domain.IndexingRequest) (domain.Metadata, error)

	// Deindex removes a document from its index. The content stays pinned.
	Deindex(ctx context.Context, indexName, documentID string) error

	// GetByID returns a document, with its payload when loadFile is set.
	GetByID(ctx context.Context, indexName, documentID string, loadFile bool) (domain.MetadataAndPayload, error)

	// GetByHash returns the first document referencing contentID.
	GetByHash(ctx context.Context, indexName, contentID string, loadFile bool) (domain.MetadataAndPayload, error)

	// Search returns a page of documents, with payloads when loadFile is set.
	Search(ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest, loadFile bool) (domain.Page[domain.MetadataAndPayload], error)

	// Count returns the number of documents matching query.
	Count(ctx context.Context, indexName string, query *domain.Query) (int64, error)

	// UpdateField sets a single user field of a document.
	UpdateField(ctx context.Context, indexName, documentID, field string, value domain.Value) error

	// Read fetches a payload by content id.
	Read(ctx context.Context, cid string) ([]byte, error)

	// Unpin releases content on the primary store and every replica.
	Unpin(ctx context.Context, cid string) error

	// Pins reports the content tracked by the primary store and each replica.
	Pins(ctx context.Context) []domain.PinStatus

	// Health checks the store and the index are reachable.
	Health(ctx context.Context) error
}
