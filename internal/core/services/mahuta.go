package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// Ensure Mahuta implements the interface.
var _ driving.MahutaService = (*Mahuta)(nil)

// Mahuta coordinates the content store, the pinning replicas and the index.
//
// A write stores the payload, pins it on the primary store and then on every
// replica, and finally indexes its metadata. Store failures abort the write.
// Replica failures are logged only. An index failure after a successful store
// write is returned, leaving the content stored but unindexed; there is no
// compensating delete.
type Mahuta struct {
	store    driven.StorageBackend
	index    driven.IndexBackend
	replicas *ReplicaSet

	asyncPinning bool
}

// Option configures a Mahuta service.
type Option func(*Mahuta)

// WithAsyncPinning skips pinning on the write path. Documents are indexed
// unpinned and a PinningScheduler confirms them later.
func WithAsyncPinning(async bool) Option {
	return func(m *Mahuta) {
		m.asyncPinning = async
	}
}

// NewMahuta creates the service. store is expected to be already wrapped
// (see BoundedStorage and CachingStorage). replicas may be nil.
func NewMahuta(
	store driven.StorageBackend,
	index driven.IndexBackend,
	replicas *ReplicaSet,
	opts ...Option,
) *Mahuta {
	if replicas == nil {
		replicas = NewReplicaSet()
	}
	m := &Mahuta{
		store:    store,
		index:    index,
		replicas: replicas,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateIndex creates an index if it does not exist.
func (m *Mahuta) CreateIndex(ctx context.Context, name string, mapping []byte) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("create_index", start, err) }()

	name = domain.NormalizeIndexName(name)
	if name == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	logger.Debug("Creating index %q (mapping: %t)", name, len(mapping) > 0)
	return m.index.CreateIndex(ctx, name, mapping)
}

// Indexes lists index names.
func (m *Mahuta) Indexes(ctx context.Context) ([]string, error) {
	return m.index.Indexes(ctx)
}

// Index stores, pins and indexes the request.
func (m *Mahuta) Index(ctx context.Context, req domain.IndexingRequest) (meta domain.Metadata, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("index", start, err) }()

	logger.Section("Index")
	if err := req.Validate(); err != nil {
		return domain.Metadata{}, err
	}

	cid, payload, err := m.resolveSource(ctx, req)
	if err != nil {
		return domain.Metadata{}, err
	}

	contentType := req.ContentType
	if contentType == "" && len(payload) > 0 {
		contentType = http.DetectContentType(payload)
		logger.Debug("Detected content type %q", contentType)
	}

	pinned := false
	if !m.asyncPinning {
		pinned, err = m.pin(ctx, cid)
		if err != nil {
			return domain.Metadata{}, err
		}
	}

	doc := domain.Metadata{
		IndexName:   domain.NormalizeIndexName(req.IndexName),
		DocumentID:  req.DocumentID,
		ContentID:   cid,
		ContentType: contentType,
		Pinned:      pinned,
		Fields:      req.Fields.Clone(),
	}
	if req.IndexContent {
		doc.Content = payload
	}

	id, err := m.index.Index(ctx, doc)
	if err != nil {
		logger.Warn("content %s stored but not indexed in %q: %v", cid, doc.IndexName, err)
		return domain.Metadata{}, err
	}
	doc.DocumentID = id

	logger.Info("Indexed %s/%s -> %s (pinned: %t)", doc.IndexName, id, cid, pinned)
	return doc, nil
}

// resolveSource writes the payload unless the request names existing
// content. The payload of a CID source is only fetched when it must be
// copied into the index.
func (m *Mahuta) resolveSource(ctx context.Context, req domain.IndexingRequest) (string, []byte, error) {
	if req.Source.Kind() == domain.SourceCID {
		cid := req.Source.CID()
		if !req.IndexContent {
			return cid, nil, nil
		}
		payload, err := m.store.Read(ctx, cid)
		if err != nil {
			return "", nil, fmt.Errorf("read %s for content indexing: %w", cid, err)
		}
		return cid, payload, nil
	}

	payload, err := req.Source.ReadAll()
	if err != nil {
		return "", nil, err
	}
	cid, err := m.store.Write(ctx, payload)
	if err != nil {
		return "", nil, fmt.Errorf("store %s payload: %w", req.Source.Kind(), err)
	}
	logger.Debug("Stored %d bytes as %s", len(payload), cid)
	return cid, payload, nil
}

// pin pins on the primary store, then on every replica. It reports whether
// every target confirmed the pin.
func (m *Mahuta) pin(ctx context.Context, cid string) (bool, error) {
	if err := m.store.Pin(ctx, cid); err != nil {
		return false, fmt.Errorf("pin %s on %s: %w", cid, m.store.Name(), err)
	}
	failed := Failed(m.replicas.PinAll(ctx, cid))
	return len(failed) == 0, nil
}

// Deindex removes a document. Its content stays pinned: other documents may
// reference the same content id.
func (m *Mahuta) Deindex(ctx context.Context, indexName, documentID string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("deindex", start, err) }()

	indexName, err = requireDocument(indexName, documentID)
	if err != nil {
		return err
	}

	doc, err := m.index.Get(ctx, indexName, documentID)
	if err != nil {
		return err
	}
	if err := m.index.Deindex(ctx, indexName, documentID); err != nil {
		return err
	}

	logger.Info("Deindexed %s/%s (content %s kept)", indexName, documentID, doc.ContentID)
	return nil
}

// GetByID returns a document, loading its payload when asked.
func (m *Mahuta) GetByID(
	ctx context.Context, indexName, documentID string, loadFile bool,
) (result domain.MetadataAndPayload, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("get_by_id", start, err) }()

	indexName, err = requireDocument(indexName, documentID)
	if err != nil {
		return domain.MetadataAndPayload{}, err
	}

	doc, err := m.index.Get(ctx, indexName, documentID)
	if err != nil {
		return domain.MetadataAndPayload{}, err
	}
	return m.hydrate(ctx, doc, loadFile)
}

// GetByHash returns the first document referencing contentID. Content ids
// are not unique per document, so this is a one-element search on the
// reserved hash field rather than a direct lookup.
func (m *Mahuta) GetByHash(
	ctx context.Context, indexName, contentID string, loadFile bool,
) (result domain.MetadataAndPayload, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("get_by_hash", start, err) }()

	indexName = domain.NormalizeIndexName(indexName)
	if indexName == "" {
		return domain.MetadataAndPayload{}, fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(contentID) == "" {
		return domain.MetadataAndPayload{}, fmt.Errorf("%w: content id is required", domain.ErrInvalidArgument)
	}

	query := domain.NewQuery().Equals(domain.FieldHash, domain.String(contentID))
	page, err := m.index.Search(ctx, indexName, query, domain.SingleElementPage())
	if err != nil {
		return domain.MetadataAndPayload{}, err
	}
	if page.IsEmpty() {
		return domain.MetadataAndPayload{}, fmt.Errorf("%w: no document in %q references %s",
			domain.ErrNotFound, indexName, contentID)
	}
	return m.hydrate(ctx, page.Elements[0], loadFile)
}

// Search returns a page of documents. With loadFile, the payloads of the
// page are fetched concurrently; the bounded store caps how many reads run
// at once.
func (m *Mahuta) Search(
	ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest, loadFile bool,
) (result domain.Page[domain.MetadataAndPayload], err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("search", start, err) }()

	logger.Section("Search")
	if err := page.Validate(); err != nil {
		return domain.Page[domain.MetadataAndPayload]{}, err
	}
	indexName = domain.NormalizeIndexName(indexName)
	logger.Debug("Index: %q, page: %d/%d, loadFile: %t", indexName, page.PageNumber, page.PageSize, loadFile)

	found, err := m.index.Search(ctx, indexName, query, page)
	if err != nil {
		return domain.Page[domain.MetadataAndPayload]{}, err
	}
	logger.Debug("Found %d of %d documents", len(found.Elements), found.TotalElements)

	hydrated := domain.MapPage(found, func(doc domain.Metadata) domain.MetadataAndPayload {
		return domain.MetadataAndPayload{Metadata: doc}
	})
	if !loadFile || found.IsEmpty() {
		return hydrated, nil
	}

	errs := make([]error, len(hydrated.Elements))
	var wg sync.WaitGroup
	for i := range hydrated.Elements {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			el := &hydrated.Elements[i]
			el.Payload, errs[i] = m.store.Read(ctx, el.ContentID)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("load %s/%s: %w", el.IndexName, el.DocumentID, errs[i])
			}
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return domain.Page[domain.MetadataAndPayload]{}, err
	}
	return hydrated, nil
}

// Count returns the number of documents matching query.
func (m *Mahuta) Count(ctx context.Context, indexName string, query *domain.Query) (int64, error) {
	return m.index.Count(ctx, domain.NormalizeIndexName(indexName), query)
}

// UpdateField sets one user field. Reserved fields are managed by the
// service and cannot be set here.
func (m *Mahuta) UpdateField(
	ctx context.Context, indexName, documentID, field string, value domain.Value,
) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("update_field", start, err) }()

	indexName, err = requireDocument(indexName, documentID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("%w: field name is required", domain.ErrInvalidArgument)
	}
	if domain.IsReserved(field) {
		return fmt.Errorf("%w: field %q is reserved", domain.ErrInvalidArgument, field)
	}
	return m.index.UpdateField(ctx, indexName, documentID, field, value)
}

// Read fetches a payload by content id.
func (m *Mahuta) Read(ctx context.Context, cid string) ([]byte, error) {
	return m.store.Read(ctx, cid)
}

// Unpin releases content on the primary store and every replica. A primary
// failure is returned; replica failures are logged.
func (m *Mahuta) Unpin(ctx context.Context, cid string) error {
	if strings.TrimSpace(cid) == "" {
		return fmt.Errorf("%w: content id is required", domain.ErrInvalidArgument)
	}
	if err := m.store.Unpin(ctx, cid); err != nil {
		return fmt.Errorf("unpin %s on %s: %w", cid, m.store.Name(), err)
	}
	m.replicas.UnpinAll(ctx, cid)
	return nil
}

// Pins reports the content retained by the primary store and each replica.
func (m *Mahuta) Pins(ctx context.Context) []domain.PinStatus {
	primary, err := m.store.ListPinned(ctx)
	statuses := []domain.PinStatus{{Replica: domain.PrimaryReplicaName, CIDs: primary, Err: err}}
	return append(statuses, m.replicas.Tracked(ctx)...)
}

// Health checks the store and the index.
func (m *Mahuta) Health(ctx context.Context) error {
	var errs []error
	if err := m.store.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage %s: %w", m.store.Name(), err))
	}
	if err := m.index.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("index: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Mahuta) hydrate(
	ctx context.Context, doc domain.Metadata, loadFile bool,
) (domain.MetadataAndPayload, error) {
	result := domain.MetadataAndPayload{Metadata: doc}
	if !loadFile {
		return result, nil
	}
	payload, err := m.store.Read(ctx, doc.ContentID)
	if err != nil {
		return domain.MetadataAndPayload{}, fmt.Errorf("load %s/%s: %w", doc.IndexName, doc.DocumentID, err)
	}
	result.Payload = payload
	return result, nil
}

// requireDocument normalises the index name and rejects empty keys.
func requireDocument(indexName, documentID string) (string, error) {
	indexName = domain.NormalizeIndexName(indexName)
	if indexName == "" {
		return "", fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(documentID) == "" {
		return "", fmt.Errorf("%w: document id is required", domain.ErrInvalidArgument)
	}
	return indexName, nil
}
