package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// --- Mock implementations for service testing ---

// mockStorage implements driven.StorageBackend in memory.
type mockStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	pins    map[string]struct{}
	writes  int
	reads   int
	inRead  int32
	maxRead int32

	writeErrs []error // consumed one per Write call
	readErr   error
	pinErr    error
	pingErr   error
	readDelay time.Duration
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		blobs: make(map[string][]byte),
		pins:  make(map[string]struct{}),
	}
}

func mockCID(data []byte) string {
	sum := sha256.Sum256(data)
	return "cid-" + hex.EncodeToString(sum[:8])
}

func (m *mockStorage) Name() string { return "mock" }

func (m *mockStorage) Write(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	cid := mockCID(data)
	m.blobs[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (m *mockStorage) Read(ctx context.Context, cid string) ([]byte, error) {
	n := atomic.AddInt32(&m.inRead, 1)
	defer atomic.AddInt32(&m.inRead, -1)
	for {
		cur := atomic.LoadInt32(&m.maxRead)
		if n <= cur || atomic.CompareAndSwapInt32(&m.maxRead, cur, n) {
			break
		}
	}

	if m.readDelay > 0 {
		select {
		case <-time.After(m.readDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.blobs[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, cid)
	}
	return append([]byte(nil), data...), nil
}

func (m *mockStorage) Pin(_ context.Context, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinErr != nil {
		return m.pinErr
	}
	m.pins[cid] = struct{}{}
	return nil
}

func (m *mockStorage) Unpin(_ context.Context, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, cid)
	return nil
}

func (m *mockStorage) ListPinned(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pins))
	for cid := range m.pins {
		out = append(out, cid)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockStorage) Ping(_ context.Context) error { return m.pingErr }

func (m *mockStorage) Close() error { return nil }

func (m *mockStorage) isPinned(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pins[cid]
	return ok
}

func (m *mockStorage) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// mockIndex implements driven.IndexBackend with exact-match filtering only.
type mockIndex struct {
	mu     sync.Mutex
	docs   map[string]map[string]domain.Metadata
	order  map[string][]string
	nextID int

	indexErr  error
	updateErr error
	pingErr   error
	searches  int
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		docs:  make(map[string]map[string]domain.Metadata),
		order: make(map[string][]string),
	}
}

func (m *mockIndex) CreateIndex(_ context.Context, name string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		m.docs[name] = make(map[string]domain.Metadata)
	}
	return nil
}

func (m *mockIndex) Indexes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockIndex) Index(_ context.Context, doc domain.Metadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return "", m.indexErr
	}
	if doc.DocumentID == "" {
		m.nextID++
		doc.DocumentID = fmt.Sprintf("gen-%d", m.nextID)
	}
	docs, ok := m.docs[doc.IndexName]
	if !ok {
		docs = make(map[string]domain.Metadata)
		m.docs[doc.IndexName] = docs
	}
	if _, exists := docs[doc.DocumentID]; !exists {
		m.order[doc.IndexName] = append(m.order[doc.IndexName], doc.DocumentID)
	}
	docs[doc.DocumentID] = doc
	return doc.DocumentID, nil
}

func (m *mockIndex) UpdateField(_ context.Context, indexName, documentID, field string, value domain.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	doc, ok := m.docs[indexName][documentID]
	if !ok {
		return domain.ErrNotFound
	}
	if field == domain.FieldPinned {
		doc.Pinned, _ = value.Boolean()
	} else {
		doc.Fields = doc.Fields.Clone()
		if doc.Fields == nil {
			doc.Fields = domain.Fields{}
		}
		doc.Fields[field] = value
	}
	m.docs[indexName][documentID] = doc
	return nil
}

func (m *mockIndex) Get(_ context.Context, indexName, documentID string) (domain.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[indexName][documentID]
	if !ok {
		return domain.Metadata{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, indexName, documentID)
	}
	return doc, nil
}

func (m *mockIndex) matches(doc domain.Metadata, query *domain.Query) bool {
	if query.IsEmpty() {
		return true
	}
	for _, f := range query.Filters {
		var got domain.Value
		switch f.Name() {
		case domain.FieldHash:
			got = domain.String(doc.ContentID)
		case domain.FieldPinned:
			got = domain.Bool(doc.Pinned)
		default:
			got = doc.Fields[f.Name()]
		}
		if f.Operation == domain.OpEquals && !got.Equal(f.Value) {
			return false
		}
	}
	return true
}

func (m *mockIndex) Search(
	_ context.Context, indexName string, query *domain.Query, page domain.PageRequest,
) (domain.Page[domain.Metadata], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if err := page.Validate(); err != nil {
		return domain.Page[domain.Metadata]{}, err
	}

	var names []string
	if indexName == "" {
		for name := range m.order {
			names = append(names, name)
		}
		sort.Strings(names)
	} else {
		names = []string{indexName}
	}

	var hits []domain.Metadata
	for _, name := range names {
		for _, id := range m.order[name] {
			doc, ok := m.docs[name][id]
			if ok && m.matches(doc, query) {
				hits = append(hits, doc)
			}
		}
	}

	total := int64(len(hits))
	from := page.Offset()
	if from > len(hits) {
		from = len(hits)
	}
	to := from + page.PageSize
	if to > len(hits) {
		to = len(hits)
	}
	return domain.NewPage(hits[from:to], total, page), nil
}

func (m *mockIndex) Count(ctx context.Context, indexName string, query *domain.Query) (int64, error) {
	page, err := m.Search(ctx, indexName, query, domain.NewPageRequest(0, 1))
	return page.TotalElements, err
}

func (m *mockIndex) Deindex(_ context.Context, indexName, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[indexName][documentID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.docs[indexName], documentID)
	ids := m.order[indexName][:0]
	for _, id := range m.order[indexName] {
		if id != documentID {
			ids = append(ids, id)
		}
	}
	m.order[indexName] = ids
	return nil
}

func (m *mockIndex) Ping(_ context.Context) error { return m.pingErr }

func (m *mockIndex) Close() error { return nil }

// mockReplica implements driven.PinningReplica.
type mockReplica struct {
	name string

	mu         sync.Mutex
	pins       map[string]struct{}
	pinCalls   int
	pinErr     error
	trackedErr error
	// lazy replicas accept pins but only track them after the next poll.
	lazy    bool
	pending map[string]struct{}
}

func newMockReplica(name string) *mockReplica {
	return &mockReplica{
		name:    name,
		pins:    make(map[string]struct{}),
		pending: make(map[string]struct{}),
	}
}

func (r *mockReplica) Name() string { return r.name }

func (r *mockReplica) Pin(_ context.Context, cid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinCalls++
	if r.pinErr != nil {
		return r.pinErr
	}
	if r.lazy {
		r.pending[cid] = struct{}{}
		return nil
	}
	r.pins[cid] = struct{}{}
	return nil
}

func (r *mockReplica) Unpin(_ context.Context, cid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pins, cid)
	return nil
}

func (r *mockReplica) Tracked(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trackedErr != nil {
		return nil, r.trackedErr
	}
	out := make([]string, 0, len(r.pins))
	for cid := range r.pins {
		out = append(out, cid)
	}
	sort.Strings(out)
	for cid := range r.pending {
		r.pins[cid] = struct{}{}
	}
	r.pending = make(map[string]struct{})
	return out, nil
}

func (r *mockReplica) tracks(cid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pins[cid]
	return ok
}

var errReplicaDown = errors.New("replica down")

// Ensure mocks implement interfaces
var (
	_ driven.StorageBackend = (*mockStorage)(nil)
	_ driven.IndexBackend   = (*mockIndex)(nil)
	_ driven.PinningReplica = (*mockReplica)(nil)
)
