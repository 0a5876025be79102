package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

func newTestMahuta(opts ...Option) (*Mahuta, *mockStorage, *mockIndex) {
	store := newMockStorage()
	index := newMockIndex()
	return NewMahuta(store, index, nil, opts...), store, index
}

func textRequest(index, id, text string, fields domain.Fields) domain.IndexingRequest {
	return domain.IndexingRequest{
		IndexName:  index,
		DocumentID: id,
		Fields:     fields,
		Source:     domain.TextSource(text),
	}
}

// ==================== Index Tests ====================

func TestMahuta_IndexRoundTrip(t *testing.T) {
	svc, store, _ := newTestMahuta()
	ctx := context.Background()
	fields := domain.Fields{"title": domain.String("hello"), "year": domain.Int(2024)}

	meta, err := svc.Index(ctx, textRequest("Articles", "a1", "hello world", fields))
	require.NoError(t, err)
	assert.Equal(t, "articles", meta.IndexName)
	assert.Equal(t, "a1", meta.DocumentID)
	assert.Equal(t, mockCID([]byte("hello world")), meta.ContentID)
	assert.True(t, meta.Pinned)
	assert.True(t, store.isPinned(meta.ContentID))

	got, err := svc.GetByID(ctx, "articles", "a1", true)
	require.NoError(t, err)
	assert.Equal(t, meta.ContentID, got.ContentID)
	assert.Equal(t, []byte("hello world"), got.Payload)
	assert.True(t, fields.Equal(got.Fields))
}

func TestMahuta_IndexGeneratesDocumentID(t *testing.T) {
	svc, _, _ := newTestMahuta()

	meta, err := svc.Index(context.Background(), textRequest("idx", "", "x", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, meta.DocumentID)
}

func TestMahuta_IndexUpsertReplacesFields(t *testing.T) {
	svc, _, index := newTestMahuta()
	ctx := context.Background()

	_, err := svc.Index(ctx, textRequest("idx", "doc", "v1", domain.Fields{"a": domain.Int(1), "b": domain.Int(2)}))
	require.NoError(t, err)
	_, err = svc.Index(ctx, textRequest("idx", "doc", "v2", domain.Fields{"c": domain.Int(3)}))
	require.NoError(t, err)

	count, err := index.Count(ctx, "idx", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := svc.GetByID(ctx, "idx", "doc", true)
	require.NoError(t, err)
	assert.True(t, domain.Fields{"c": domain.Int(3)}.Equal(got.Fields))
	assert.Equal(t, []byte("v2"), got.Payload)
}

func TestMahuta_IndexDetectsContentType(t *testing.T) {
	svc, _, _ := newTestMahuta()
	ctx := context.Background()

	meta, err := svc.Index(ctx, domain.IndexingRequest{
		IndexName: "idx",
		Source:    domain.StreamSource(strings.NewReader("<html><body>hi</body></html>")),
	})
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", meta.ContentType)

	meta, err = svc.Index(ctx, domain.IndexingRequest{
		IndexName:   "idx",
		ContentType: "application/x-custom",
		Source:      domain.BytesSource([]byte("data")),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", meta.ContentType)
}

func TestMahuta_IndexContent(t *testing.T) {
	svc, _, index := newTestMahuta()
	ctx := context.Background()

	req := textRequest("idx", "doc", "full text body", nil)
	req.IndexContent = true
	_, err := svc.Index(ctx, req)
	require.NoError(t, err)

	doc, err := index.Get(ctx, "idx", "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("full text body"), doc.Content)
}

func TestMahuta_IndexExistingCID(t *testing.T) {
	svc, store, index := newTestMahuta()
	ctx := context.Background()

	cid, err := store.Write(ctx, []byte("already stored"))
	require.NoError(t, err)
	writes := store.writes

	meta, err := svc.Index(ctx, domain.IndexingRequest{
		IndexName:    "idx",
		DocumentID:   "doc",
		IndexContent: true,
		Source:       domain.CIDSource(cid),
	})
	require.NoError(t, err)
	assert.Equal(t, cid, meta.ContentID)
	assert.Equal(t, writes, store.writes, "a CID source must not be written again")

	doc, err := index.Get(ctx, "idx", "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("already stored"), doc.Content)
}

func TestMahuta_IndexExistingCIDWithoutContent(t *testing.T) {
	svc, store, _ := newTestMahuta()

	_, err := svc.Index(context.Background(), domain.IndexingRequest{
		IndexName: "idx",
		Source:    domain.CIDSource("cid-unknown"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.readCount())
	assert.Equal(t, 0, store.writes)
}

func TestMahuta_IndexValidation(t *testing.T) {
	svc, store, _ := newTestMahuta()
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.IndexingRequest
	}{
		{"no index", textRequest("", "doc", "x", nil)},
		{"empty payload", textRequest("idx", "doc", "", nil)},
		{"reserved field", textRequest("idx", "doc", "x", domain.Fields{domain.FieldHash: domain.String("x")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Index(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
	assert.Equal(t, 0, store.writes)
}

func TestMahuta_StoreFailureAbortsIndex(t *testing.T) {
	svc, store, index := newTestMahuta()
	ctx := context.Background()
	store.writeErrs = []error{fmt.Errorf("%w: disk full", domain.ErrTechnical)}

	_, err := svc.Index(ctx, textRequest("idx", "doc", "x", nil))
	assert.ErrorIs(t, err, domain.ErrTechnical)

	_, err = index.Get(ctx, "idx", "doc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMahuta_PrimaryPinFailureAbortsIndex(t *testing.T) {
	svc, store, index := newTestMahuta()
	ctx := context.Background()
	store.pinErr = fmt.Errorf("%w: pin refused", domain.ErrTechnical)

	_, err := svc.Index(ctx, textRequest("idx", "doc", "x", nil))
	assert.ErrorIs(t, err, domain.ErrTechnical)

	count, err := index.Count(ctx, "idx", nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMahuta_IndexFailureLeavesContentStored(t *testing.T) {
	svc, store, index := newTestMahuta()
	ctx := context.Background()
	index.indexErr = fmt.Errorf("%w: cluster red", domain.ErrTechnical)

	_, err := svc.Index(ctx, textRequest("idx", "doc", "orphan", nil))
	assert.ErrorIs(t, err, domain.ErrTechnical)

	data, err := store.Read(ctx, mockCID([]byte("orphan")))
	require.NoError(t, err)
	assert.Equal(t, []byte("orphan"), data)
}

func TestMahuta_ReplicaBestEffort(t *testing.T) {
	store := newMockStorage()
	index := newMockIndex()
	healthy := newMockReplica("healthy")
	failing := newMockReplica("failing")
	failing.pinErr = errReplicaDown
	svc := NewMahuta(store, index, NewReplicaSet(healthy, failing))
	ctx := context.Background()

	meta, err := svc.Index(ctx, textRequest("idx", "doc", "replicated", nil))
	require.NoError(t, err)

	_, err = index.Get(ctx, "idx", "doc")
	require.NoError(t, err)

	healthyTracked, err := healthy.Tracked(ctx)
	require.NoError(t, err)
	assert.Contains(t, healthyTracked, meta.ContentID)

	failingTracked, err := failing.Tracked(ctx)
	require.NoError(t, err)
	assert.NotContains(t, failingTracked, meta.ContentID)

	assert.False(t, meta.Pinned, "a document is only pinned once every replica confirmed")
}

func TestMahuta_AsyncPinningSkipsPins(t *testing.T) {
	replica := newMockReplica("r1")
	store := newMockStorage()
	svc := NewMahuta(store, newMockIndex(), NewReplicaSet(replica), WithAsyncPinning(true))

	meta, err := svc.Index(context.Background(), textRequest("idx", "doc", "later", nil))
	require.NoError(t, err)
	assert.False(t, meta.Pinned)
	assert.False(t, store.isPinned(meta.ContentID))
	assert.Equal(t, 0, replica.pinCalls)
}

// ==================== Read Tests ====================

func TestMahuta_DeindexTerminality(t *testing.T) {
	svc, store, _ := newTestMahuta()
	ctx := context.Background()

	meta, err := svc.Index(ctx, textRequest("idx", "doc", "survives", nil))
	require.NoError(t, err)

	require.NoError(t, svc.Deindex(ctx, "idx", "doc"))

	_, err = svc.GetByID(ctx, "idx", "doc", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	data, err := svc.Read(ctx, meta.ContentID)
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), data)
	assert.True(t, store.isPinned(meta.ContentID), "deindex never unpins")
}

func TestMahuta_DeindexMissing(t *testing.T) {
	svc, _, _ := newTestMahuta()

	err := svc.Deindex(context.Background(), "idx", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Deindex(context.Background(), "idx", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMahuta_GetByIDWithoutPayload(t *testing.T) {
	svc, store, _ := newTestMahuta()
	ctx := context.Background()

	_, err := svc.Index(ctx, textRequest("idx", "doc", "x", nil))
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, "IDX", "doc", false)
	require.NoError(t, err)
	assert.False(t, got.HasPayload())
	assert.Equal(t, 0, store.readCount())
}

func TestMahuta_GetByHash(t *testing.T) {
	svc, _, index := newTestMahuta()
	ctx := context.Background()

	meta, err := svc.Index(ctx, textRequest("idx", "doc", "by hash", nil))
	require.NoError(t, err)

	got, err := svc.GetByHash(ctx, "idx", meta.ContentID, true)
	require.NoError(t, err)
	assert.Equal(t, "doc", got.DocumentID)
	assert.Equal(t, []byte("by hash"), got.Payload)
	assert.Equal(t, 1, index.searches)

	_, err = svc.GetByHash(ctx, "idx", "cid-none", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByHash(ctx, "idx", "", false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMahuta_SearchPagination(t *testing.T) {
	svc, _, _ := newTestMahuta()
	ctx := context.Background()

	const total = 7
	for i := 0; i < total; i++ {
		_, err := svc.Index(ctx, textRequest("idx", fmt.Sprintf("doc-%d", i), fmt.Sprintf("payload %d", i), nil))
		require.NoError(t, err)
	}

	var seen []string
	req := domain.NewPageRequest(0, 3)
	for {
		page, err := svc.Search(ctx, "idx", nil, req, false)
		require.NoError(t, err)
		assert.Equal(t, 3, page.TotalPages)
		assert.Equal(t, int64(total), page.TotalElements)
		assert.LessOrEqual(t, len(page.Elements), 3)
		for _, el := range page.Elements {
			seen = append(seen, el.DocumentID)
		}
		if page.IsLast() {
			break
		}
		req = page.NextPageRequest()
	}

	sort.Strings(seen)
	require.Len(t, seen, total)
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i])
	}
}

func TestMahuta_SearchLoadsPayloads(t *testing.T) {
	svc, _, _ := newTestMahuta()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Index(ctx, textRequest("idx", fmt.Sprintf("doc-%d", i), fmt.Sprintf("payload %d", i), nil))
		require.NoError(t, err)
	}

	page, err := svc.Search(ctx, "idx", nil, domain.NewPageRequest(0, 10), true)
	require.NoError(t, err)
	require.Len(t, page.Elements, 4)
	for _, el := range page.Elements {
		assert.Equal(t, "payload "+strings.TrimPrefix(el.DocumentID, "doc-"), string(el.Payload))
	}
}

func TestMahuta_SearchLoadFailure(t *testing.T) {
	svc, store, _ := newTestMahuta()
	ctx := context.Background()

	_, err := svc.Index(ctx, textRequest("idx", "doc", "x", nil))
	require.NoError(t, err)
	store.readErr = fmt.Errorf("%w: gone", domain.ErrTechnical)

	_, err = svc.Search(ctx, "idx", nil, domain.NewPageRequest(0, 10), true)
	assert.ErrorIs(t, err, domain.ErrTechnical)
}

func TestMahuta_SearchRejectsBadPage(t *testing.T) {
	svc, _, _ := newTestMahuta()

	_, err := svc.Search(context.Background(), "idx", nil, domain.NewPageRequest(0, 0), false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMahuta_UpdateField(t *testing.T) {
	svc, _, _ := newTestMahuta()
	ctx := context.Background()

	_, err := svc.Index(ctx, textRequest("idx", "doc", "x", domain.Fields{"a": domain.Int(1), "b": domain.Int(2)}))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateField(ctx, "idx", "doc", "a", domain.Int(10)))

	got, err := svc.GetByID(ctx, "idx", "doc", false)
	require.NoError(t, err)
	assert.True(t, got.Fields["a"].Equal(domain.Int(10)))
	assert.True(t, got.Fields["b"].Equal(domain.Int(2)))

	err = svc.UpdateField(ctx, "idx", "doc", domain.FieldPinned, domain.Bool(true))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = svc.UpdateField(ctx, "idx", "missing", "a", domain.Int(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Pin management Tests ====================

func TestMahuta_UnpinAndPins(t *testing.T) {
	store := newMockStorage()
	replica := newMockReplica("r1")
	svc := NewMahuta(store, newMockIndex(), NewReplicaSet(replica))
	ctx := context.Background()

	meta, err := svc.Index(ctx, textRequest("idx", "doc", "x", nil))
	require.NoError(t, err)

	statuses := svc.Pins(ctx)
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.PrimaryReplicaName, statuses[0].Replica)
	assert.Equal(t, []string{meta.ContentID}, statuses[0].CIDs)
	assert.Equal(t, "r1", statuses[1].Replica)
	assert.Equal(t, []string{meta.ContentID}, statuses[1].CIDs)

	require.NoError(t, svc.Unpin(ctx, meta.ContentID))
	assert.False(t, store.isPinned(meta.ContentID))
	assert.False(t, replica.tracks(meta.ContentID))

	assert.ErrorIs(t, svc.Unpin(ctx, ""), domain.ErrInvalidArgument)
}

func TestMahuta_Health(t *testing.T) {
	svc, store, index := newTestMahuta()
	ctx := context.Background()

	assert.NoError(t, svc.Health(ctx))

	store.pingErr = domain.ErrConnection
	index.pingErr = domain.ErrConnection
	err := svc.Health(ctx)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Contains(t, err.Error(), "storage mock")
	assert.Contains(t, err.Error(), "index")
}

func TestMahuta_CreateIndexAndList(t *testing.T) {
	svc, _, _ := newTestMahuta()
	ctx := context.Background()

	require.NoError(t, svc.CreateIndex(ctx, "Books", nil))
	require.NoError(t, svc.CreateIndex(ctx, "books", nil))

	names, err := svc.Indexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"books"}, names)

	assert.ErrorIs(t, svc.CreateIndex(ctx, " ", nil), domain.ErrInvalidArgument)
}
