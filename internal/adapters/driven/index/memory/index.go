// Package memory provides an in-process index backend.
//
// Documents are held per index in insertion order. Equality and membership
// filters are narrowed through roaring bitmap posting lists before the
// compiled predicate runs. The whole index can be snapshotted to a
// compressed file and restored on start.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.IndexBackend = (*Index)(nil)

// Config configures the memory index.
type Config struct {
	// IndexNull writes null and empty values as the null token.
	IndexNull bool
	// SnapshotPath, when set, is loaded on start and written on Close.
	SnapshotPath string
}

type record struct {
	seq uint32
	doc domain.Metadata
}

type collection struct {
	name     string
	mapping  []byte
	nextSeq  uint32
	docs     map[string]*record
	bySeq    map[uint32]*record
	live     *roaring.Bitmap
	postings postings
}

func newCollection(name string, mapping []byte) *collection {
	return &collection{
		name:     name,
		mapping:  bytes.Clone(mapping),
		docs:     make(map[string]*record),
		bySeq:    make(map[uint32]*record),
		live:     roaring.New(),
		postings: make(postings),
	}
}

func (c *collection) put(doc domain.Metadata) {
	if rec, ok := c.docs[doc.DocumentID]; ok {
		c.postings.remove(rec.seq, rec.doc)
		rec.doc = doc
		c.postings.add(rec.seq, doc)
		return
	}
	rec := &record{seq: c.nextSeq, doc: doc}
	c.nextSeq++
	c.docs[doc.DocumentID] = rec
	c.bySeq[rec.seq] = rec
	c.live.Add(rec.seq)
	c.postings.add(rec.seq, doc)
}

func (c *collection) delete(id string) bool {
	rec, ok := c.docs[id]
	if !ok {
		return false
	}
	c.postings.remove(rec.seq, rec.doc)
	c.live.Remove(rec.seq)
	delete(c.bySeq, rec.seq)
	delete(c.docs, id)
	return true
}

// Index is an in-memory index backend.
type Index struct {
	mu           sync.RWMutex
	collections  map[string]*collection
	translator   Translator
	snapshotPath string
}

// NewIndex creates an index, restoring the snapshot when one exists.
func NewIndex(cfg Config) (*Index, error) {
	idx := &Index{
		collections:  make(map[string]*collection),
		translator:   Translator{IndexNull: cfg.IndexNull},
		snapshotPath: cfg.SnapshotPath,
	}
	if cfg.SnapshotPath != "" {
		if err := idx.load(cfg.SnapshotPath); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// CreateIndex registers name. An existing index keeps its documents.
func (x *Index) CreateIndex(ctx context.Context, name string, mapping []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = domain.NormalizeIndexName(name)
	if name == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.collections[name]; !ok {
		x.collections[name] = newCollection(name, mapping)
	}
	return nil
}

// Indexes returns the index names, sorted.
func (x *Index) Indexes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	names := make([]string, 0, len(x.collections))
	for name := range x.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Index upserts doc.
func (x *Index) Index(ctx context.Context, doc domain.Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	doc = x.prepare(doc)

	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.collections[doc.IndexName]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoIndex, doc.IndexName)
	}
	c.put(doc)
	return doc.DocumentID, nil
}

func (x *Index) prepare(doc domain.Metadata) domain.Metadata {
	doc.IndexName = domain.NormalizeIndexName(doc.IndexName)
	if doc.DocumentID == "" {
		doc.DocumentID = uuid.New().String()
	}
	doc.Fields = domain.HandleNullValues(doc.Fields, x.translator.IndexNull)
	doc.Content = bytes.Clone(doc.Content)
	return doc
}

// UpdateField sets one field of a stored document.
func (x *Index) UpdateField(ctx context.Context, indexName, documentID, field string, value domain.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	rec, c, err := x.lookup(indexName, documentID)
	if err != nil {
		return err
	}

	doc := clone(rec.doc)
	if err := doc.SetField(field, value, x.translator.IndexNull); err != nil {
		return err
	}
	c.put(doc)
	return nil
}

// Get returns a copy of a stored document.
func (x *Index) Get(ctx context.Context, indexName, documentID string) (domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.Metadata{}, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, _, err := x.lookup(indexName, documentID)
	if err != nil {
		return domain.Metadata{}, err
	}
	return clone(rec.doc), nil
}

func (x *Index) lookup(indexName, documentID string) (*record, *collection, error) {
	name := domain.NormalizeIndexName(indexName)
	c, ok := x.collections[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: index %s", domain.ErrNotFound, name)
	}
	rec, ok := c.docs[documentID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, name, documentID)
	}
	return rec, c, nil
}

// Search returns one page of matches ordered by the requested sort, then
// by index name and insertion order.
func (x *Index) Search(ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest) (domain.Page[domain.Metadata], error) {
	if err := page.Validate(); err != nil {
		return domain.Page[domain.Metadata]{}, err
	}
	matches, err := x.match(ctx, indexName, query)
	if err != nil {
		return domain.Page[domain.Metadata]{}, err
	}
	if page.SortField != "" {
		sortDocuments(matches, page.SortField, page.IsAscending())
	}

	total := int64(len(matches))
	start := page.Offset()
	if start > len(matches) {
		start = len(matches)
	}
	end := start + page.PageSize
	if end > len(matches) {
		end = len(matches)
	}

	elements := make([]domain.Metadata, 0, end-start)
	for _, doc := range matches[start:end] {
		elements = append(elements, clone(doc))
	}
	return domain.NewPage(elements, total, page), nil
}

// Count returns the number of matches.
func (x *Index) Count(ctx context.Context, indexName string, query *domain.Query) (int64, error) {
	matches, err := x.match(ctx, indexName, query)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

func (x *Index) match(ctx context.Context, indexName string, query *domain.Query) ([]domain.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred := x.translator.Translate(query)

	x.mu.RLock()
	defer x.mu.RUnlock()

	var targets []*collection
	if name := domain.NormalizeIndexName(indexName); name != "" {
		c, ok := x.collections[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoIndex, name)
		}
		targets = append(targets, c)
	} else {
		for _, c := range x.collections {
			targets = append(targets, c)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].name < targets[j].name })
	}

	var out []domain.Metadata
	for _, c := range targets {
		it := c.postings.candidates(query, x.translator.IndexNull, c.live).Iterator()
		for it.HasNext() {
			doc := c.bySeq[it.Next()].doc
			if pred(doc) {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

// sortDocuments orders by field. Documents without a comparable value sort
// last in either direction.
func sortDocuments(docs []domain.Metadata, field string, asc bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := sortKey(docs[i], field)
		b, bok := sortKey(docs[j], field)
		if !aok || !bok {
			return aok && !bok
		}
		c, ok := domain.Compare(a, b)
		if !ok {
			return false
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func sortKey(doc domain.Metadata, field string) (domain.Value, bool) {
	v, ok := fieldValue(doc, field)
	if !ok || v.IsNull() {
		return v, false
	}
	if items := v.Items(); len(items) > 0 {
		return items[0], true
	}
	return v, false
}

// Deindex removes a document.
func (x *Index) Deindex(ctx context.Context, indexName, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	_, c, err := x.lookup(indexName, documentID)
	if err != nil {
		return err
	}
	c.delete(documentID)
	return nil
}

// Ping always succeeds.
func (x *Index) Ping(_ context.Context) error {
	return nil
}

// Close writes the snapshot when one is configured.
func (x *Index) Close() error {
	if x.snapshotPath == "" {
		return nil
	}
	return x.Snapshot(x.snapshotPath)
}

func clone(doc domain.Metadata) domain.Metadata {
	doc.Fields = doc.Fields.Clone()
	doc.Content = bytes.Clone(doc.Content)
	return doc
}
