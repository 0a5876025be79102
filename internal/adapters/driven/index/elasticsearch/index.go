// Package elasticsearch provides an index backend on an Elasticsearch
// cluster.
//
// Documents keep the reserved attributes under the __hash, __content_type,
// __pinned and __content keys next to the user fields. Every write
// refreshes the index so it is immediately searchable.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.IndexBackend = (*Index)(nil)

// DefaultURL is used when no node address is configured.
const DefaultURL = "http://localhost:9200"

// allIndexes is the search target when no index is named.
const allIndexes = "_all"

// retryOnConflict bounds partial update retries.
const retryOnConflict = 5

// Config holds configuration for the Elasticsearch index.
type Config struct {
	URLs     []string
	Username string
	Password string

	// IndexNull writes null and empty values as the null token.
	IndexNull bool

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Index implements driven.IndexBackend on Elasticsearch.
type Index struct {
	client     *es.Client
	translator Translator
	indexNull  bool

	// mappings caches field types per index until the next write.
	mappings *xsync.MapOf[string, fieldTypes]
}

// NewIndex creates a client. No request is made until first use.
func NewIndex(cfg Config) (*Index, error) {
	urls := cfg.URLs
	if len(urls) == 0 {
		urls = []string{DefaultURL}
	}
	client, err := es.NewClient(es.Config{
		Addresses: urls,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch client: %v", domain.ErrNotConfigured, err)
	}
	return &Index{
		client:     client,
		translator: Translator{IndexNull: cfg.IndexNull},
		indexNull:  cfg.IndexNull,
		mappings:   xsync.NewMapOf[string, fieldTypes](),
	}, nil
}

// CreateIndex creates the index with mapping, or the default mapping.
func (x *Index) CreateIndex(ctx context.Context, name string, mapping []byte) error {
	name = domain.NormalizeIndexName(name)
	if name == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	exists, err := x.exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("index %s already exists", name)
		return nil
	}

	if len(mapping) == 0 {
		mapping = defaultMapping
	}
	res, err := x.client.Indices.Create(name,
		x.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
		x.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return transportError("creating index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body := readBody(res)
		if strings.Contains(body, "resource_already_exists_exception") {
			return nil
		}
		return responseError("creating index", res.StatusCode, body)
	}
	logger.Debug("created index %s", name)
	return nil
}

// Indexes lists index names, skipping hidden system indexes.
func (x *Index) Indexes(ctx context.Context) ([]string, error) {
	res, err := x.client.Cat.Indices(
		x.client.Cat.Indices.WithFormat("json"),
		x.client.Cat.Indices.WithH("index"),
		x.client.Cat.Indices.WithContext(ctx))
	if err != nil {
		return nil, transportError("listing indexes", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("listing indexes", res.StatusCode, readBody(res))
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decoding indexes: %v", domain.ErrTechnical, err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if !strings.HasPrefix(r.Index, ".") {
			names = append(names, r.Index)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Index upserts a document.
func (x *Index) Index(ctx context.Context, doc domain.Metadata) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	doc.IndexName = domain.NormalizeIndexName(doc.IndexName)
	if doc.DocumentID == "" {
		doc.DocumentID = uuid.NewString()
	}
	doc.Fields = domain.HandleNullValues(doc.Fields, x.indexNull)

	if err := x.requireIndex(ctx, doc.IndexName); err != nil {
		return "", err
	}

	body, err := json.Marshal(source(doc))
	if err != nil {
		return "", fmt.Errorf("%w: encoding document: %v", domain.ErrInvalidArgument, err)
	}
	res, err := x.client.Index(doc.IndexName, bytes.NewReader(body),
		x.client.Index.WithDocumentID(doc.DocumentID),
		x.client.Index.WithRefresh("true"),
		x.client.Index.WithContext(ctx))
	if err != nil {
		return "", transportError("indexing", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", responseError("indexing", res.StatusCode, readBody(res))
	}
	x.mappings.Delete(doc.IndexName)

	logger.Debug("indexed %s/%s", doc.IndexName, doc.DocumentID)
	return doc.DocumentID, nil
}

// UpdateField sets one field with a scripted partial update.
func (x *Index) UpdateField(ctx context.Context, indexName, documentID, field string, value domain.Value) error {
	var check domain.Metadata
	if err := check.SetField(field, value, x.indexNull); err != nil {
		return err
	}
	name := domain.NormalizeIndexName(indexName)
	if err := x.requireIndex(ctx, name); err != nil {
		if errors.Is(err, domain.ErrNoIndex) {
			return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, name, documentID)
		}
		return err
	}

	script := DSL{"source": "ctx._source.remove(params.field)", "params": DSL{"field": field}}
	if encoded, ok := encodeField(field, value, x.indexNull); ok {
		script = DSL{
			"source": "ctx._source[params.field] = params.value",
			"params": DSL{"field": field, "value": encoded},
		}
	}
	body, err := json.Marshal(DSL{"script": script})
	if err != nil {
		return fmt.Errorf("%w: encoding update: %v", domain.ErrInvalidArgument, err)
	}

	res, err := x.client.Update(name, documentID, bytes.NewReader(body),
		x.client.Update.WithRefresh("true"),
		x.client.Update.WithRetryOnConflict(retryOnConflict),
		x.client.Update.WithContext(ctx))
	if err != nil {
		return transportError("updating", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, name, documentID)
	}
	if res.IsError() {
		return responseError("updating", res.StatusCode, readBody(res))
	}
	x.mappings.Delete(name)
	return nil
}

// Get returns a document.
func (x *Index) Get(ctx context.Context, indexName, documentID string) (domain.Metadata, error) {
	name := domain.NormalizeIndexName(indexName)
	res, err := x.client.Get(name, documentID, x.client.Get.WithContext(ctx))
	if err != nil {
		return domain.Metadata{}, transportError("getting", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return domain.Metadata{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, name, documentID)
	}
	if res.IsError() {
		return domain.Metadata{}, responseError("getting", res.StatusCode, readBody(res))
	}

	var h hit
	if err := json.NewDecoder(res.Body).Decode(&h); err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: decoding document: %v", domain.ErrTechnical, err)
	}
	types, err := x.fieldTypes(ctx, name)
	if err != nil {
		return domain.Metadata{}, err
	}
	return h.metadata(types[h.Index])
}

// Search returns one page of matches.
func (x *Index) Search(ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest) (domain.Page[domain.Metadata], error) {
	if err := page.Validate(); err != nil {
		return domain.Page[domain.Metadata]{}, err
	}
	target, err := x.target(ctx, indexName)
	if err != nil {
		return domain.Page[domain.Metadata]{}, err
	}

	req := DSL{
		"query":            x.translator.Translate(query),
		"from":             page.Offset(),
		"size":             page.PageSize,
		"track_total_hits": true,
	}
	types, err := x.fieldTypes(ctx, target)
	if err != nil {
		return domain.Page[domain.Metadata]{}, err
	}
	if page.SortField != "" {
		order := "asc"
		if !page.IsAscending() {
			order = "desc"
		}
		req["sort"] = []any{DSL{sortField(page.SortField, types): DSL{"order": order, "unmapped_type": "date"}}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Page[domain.Metadata]{}, fmt.Errorf("%w: encoding search: %v", domain.ErrInvalidArgument, err)
	}

	res, err := x.client.Search(
		x.client.Search.WithIndex(target),
		x.client.Search.WithBody(bytes.NewReader(body)),
		x.client.Search.WithContext(ctx))
	if err != nil {
		return domain.Page[domain.Metadata]{}, transportError("searching", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return domain.Page[domain.Metadata]{}, responseError("searching", res.StatusCode, readBody(res))
	}

	var sr struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return domain.Page[domain.Metadata]{}, fmt.Errorf("%w: decoding search: %v", domain.ErrTechnical, err)
	}

	docs := make([]domain.Metadata, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		doc, err := h.metadata(types[h.Index])
		if err != nil {
			return domain.Page[domain.Metadata]{}, err
		}
		docs = append(docs, doc)
	}
	return domain.NewPage(docs, sr.Hits.Total.Value, page), nil
}

// Count returns the number of matches.
func (x *Index) Count(ctx context.Context, indexName string, query *domain.Query) (int64, error) {
	target, err := x.target(ctx, indexName)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(DSL{"query": x.translator.Translate(query)})
	if err != nil {
		return 0, fmt.Errorf("%w: encoding count: %v", domain.ErrInvalidArgument, err)
	}

	res, err := x.client.Count(
		x.client.Count.WithIndex(target),
		x.client.Count.WithBody(bytes.NewReader(body)),
		x.client.Count.WithContext(ctx))
	if err != nil {
		return 0, transportError("counting", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, responseError("counting", res.StatusCode, readBody(res))
	}

	var cr struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("%w: decoding count: %v", domain.ErrTechnical, err)
	}
	return cr.Count, nil
}

// Deindex removes a document.
func (x *Index) Deindex(ctx context.Context, indexName, documentID string) error {
	name := domain.NormalizeIndexName(indexName)
	res, err := x.client.Delete(name, documentID,
		x.client.Delete.WithRefresh("true"),
		x.client.Delete.WithContext(ctx))
	if err != nil {
		return transportError("deindexing", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, name, documentID)
	}
	if res.IsError() {
		return responseError("deindexing", res.StatusCode, readBody(res))
	}
	return nil
}

// Ping checks the cluster answers.
func (x *Index) Ping(ctx context.Context) error {
	res, err := x.client.Ping(x.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: elasticsearch: %v", domain.ErrConnection, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: elasticsearch: status %d", domain.ErrConnection, res.StatusCode)
	}
	return nil
}

// Close is a no-op; the client holds no resources beyond idle connections.
func (x *Index) Close() error {
	return nil
}

func (x *Index) exists(ctx context.Context, name string) (bool, error) {
	res, err := x.client.Indices.Exists([]string{name}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportError("checking index", err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, responseError("checking index", res.StatusCode, readBody(res))
	}
	return true, nil
}

func (x *Index) requireIndex(ctx context.Context, name string) error {
	exists, err := x.exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrNoIndex, name)
	}
	return nil
}

// target returns the search target for indexName, checking it exists.
func (x *Index) target(ctx context.Context, indexName string) (string, error) {
	name := domain.NormalizeIndexName(indexName)
	if name == "" {
		return allIndexes, nil
	}
	if err := x.requireIndex(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// fieldTypes returns the field types of target per concrete index name.
func (x *Index) fieldTypes(ctx context.Context, target string) (map[string]fieldTypes, error) {
	if types, ok := x.mappings.Load(target); ok && target != allIndexes {
		return map[string]fieldTypes{target: types}, nil
	}

	res, err := x.client.Indices.GetMapping(
		x.client.Indices.GetMapping.WithIndex(target),
		x.client.Indices.GetMapping.WithContext(ctx))
	if err != nil {
		return nil, transportError("reading mapping", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return map[string]fieldTypes{}, nil
	}
	if res.IsError() {
		return nil, responseError("reading mapping", res.StatusCode, readBody(res))
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading mapping: %v", domain.ErrTechnical, err)
	}
	all, err := parseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding mapping: %v", domain.ErrTechnical, err)
	}
	for name, types := range all {
		x.mappings.Store(name, types)
	}
	return all, nil
}

// sortField sorts analyzed strings on their raw keyword.
func sortField(field string, types map[string]fieldTypes) string {
	for _, t := range types {
		if t[field] == "text" {
			return field + rawField
		}
	}
	return field
}

// source builds the stored document.
func source(doc domain.Metadata) map[string]any {
	src := make(map[string]any, len(doc.Fields)+4)
	for name, v := range doc.Fields {
		src[name] = encodeValue(v)
	}
	src[domain.FieldHash] = doc.ContentID
	src[domain.FieldPinned] = doc.Pinned
	if doc.ContentType != "" {
		src[domain.FieldContentType] = doc.ContentType
	}
	if doc.Content != nil {
		src[domain.FieldContent] = base64.StdEncoding.EncodeToString(doc.Content)
	}
	return src
}

// encodeField returns the stored form of a single field, or false when the
// field should be removed.
func encodeField(field string, v domain.Value, indexNull bool) (any, bool) {
	switch field {
	case domain.FieldHash, domain.FieldPinned:
		return v.Interface(), true
	case domain.FieldContentType:
		if v.IsNull() {
			return nil, false
		}
		return v.Text(), true
	case domain.FieldContent:
		if v.IsNull() {
			return nil, false
		}
		return base64.StdEncoding.EncodeToString([]byte(v.Text())), true
	}
	fields := domain.HandleNullValues(domain.Fields{field: v}, indexNull)
	stored, ok := fields[field]
	if !ok {
		return nil, false
	}
	return encodeValue(stored), true
}

// hit is a document as returned by get and search.
type hit struct {
	Index  string                     `json:"_index"`
	ID     string                     `json:"_id"`
	Source map[string]json.RawMessage `json:"_source"`
}

func (h hit) metadata(types fieldTypes) (domain.Metadata, error) {
	doc := domain.Metadata{IndexName: h.Index, DocumentID: h.ID}
	for name, raw := range h.Source {
		switch name {
		case domain.FieldHash:
			_ = json.Unmarshal(raw, &doc.ContentID)
		case domain.FieldContentType:
			_ = json.Unmarshal(raw, &doc.ContentType)
		case domain.FieldPinned:
			_ = json.Unmarshal(raw, &doc.Pinned)
		case domain.FieldContent:
			var encoded string
			if err := json.Unmarshal(raw, &encoded); err == nil && encoded != "" {
				content, err := base64.StdEncoding.DecodeString(encoded)
				if err != nil {
					return domain.Metadata{}, fmt.Errorf("%w: decoding content of %s: %v", domain.ErrTechnical, h.ID, err)
				}
				doc.Content = content
			}
		default:
			var v domain.Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return domain.Metadata{}, fmt.Errorf("%w: decoding field %s of %s: %v", domain.ErrTechnical, name, h.ID, err)
			}
			if types[name] == "date" {
				v = decodeDate(v)
			}
			if doc.Fields == nil {
				doc.Fields = make(domain.Fields)
			}
			doc.Fields[name] = v
		}
	}
	return doc, nil
}

func readBody(res *esapi.Response) string {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return strings.TrimSpace(string(data))
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConnection, op, err)
}

func responseError(op string, status int, body string) error {
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrTechnical, op, status, body)
}
