package ipfs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/cid"
	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// fakeNode serves the subset of the IPFS HTTP API the store uses.
type fakeNode struct {
	mu     sync.Mutex
	blocks map[string][]byte
	pins   map[string]bool
	down   bool
}

func newFakeNode(t *testing.T) (*fakeNode, *Store) {
	t.Helper()
	node := &fakeNode{blocks: map[string][]byte{}, pins: map[string]bool{}}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	store, err := NewStore(srv.URL)
	require.NoError(t, err)
	return node, store
}

func (n *fakeNode) isPinned(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pins[id]
}

func (n *fakeNode) setDown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = true
}

func (n *fakeNode) fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"Message": msg, "Code": 0, "Type": "error"})
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.down {
		n.fail(w, "node is shutting down")
		return
	}
	arg := r.URL.Query().Get("arg")
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/v0/add":
		mr, err := r.MultipartReader()
		if err != nil {
			n.fail(w, err.Error())
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			n.fail(w, err.Error())
			return
		}
		data, _ := io.ReadAll(part)
		id, _ := cid.Sum(data)
		n.blocks[id] = data
		_ = json.NewEncoder(w).Encode(map[string]string{"Name": id, "Hash": id})
	case "/api/v0/cat":
		data, ok := n.blocks[arg]
		if !ok {
			n.fail(w, "block was not found locally (offline)")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(data)
	case "/api/v0/pin/add":
		n.pins[arg] = true
		_ = json.NewEncoder(w).Encode(map[string][]string{"Pins": {arg}})
	case "/api/v0/pin/rm":
		if !n.pins[arg] {
			n.fail(w, "not pinned or pinned indirectly")
			return
		}
		delete(n.pins, arg)
		_ = json.NewEncoder(w).Encode(map[string][]string{"Pins": {arg}})
	case "/api/v0/pin/ls":
		keys := map[string]map[string]string{}
		for id := range n.pins {
			keys[id] = map[string]string{"Type": "recursive"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Keys": keys})
	case "/api/v0/id":
		_ = json.NewEncoder(w).Encode(map[string]string{"ID": "12D3KooWfake"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestNewStore_EmptyURL(t *testing.T) {
	_, err := NewStore("")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	_, store := newFakeNode(t)

	id, err := store.Write(ctx, []byte("hello ipfs"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	data, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello ipfs"), data)
}

func TestStore_WriteEmpty(t *testing.T) {
	_, store := newFakeNode(t)
	_, err := store.Write(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_ReadMissing(t *testing.T) {
	_, store := newFakeNode(t)
	_, err := store.Read(context.Background(), "QmMissing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PinLifecycle(t *testing.T) {
	ctx := context.Background()
	node, store := newFakeNode(t)

	id, err := store.Write(ctx, []byte("pin me"))
	require.NoError(t, err)

	require.NoError(t, store.Pin(ctx, id))
	assert.True(t, node.isPinned(id))

	pinned, err := store.ListPinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pinned)

	require.NoError(t, store.Unpin(ctx, id))
	require.NoError(t, store.Unpin(ctx, id))

	pinned, err = store.ListPinned(ctx)
	require.NoError(t, err)
	assert.Empty(t, pinned)
}

func TestStore_NodeErrorsAreTechnical(t *testing.T) {
	node, store := newFakeNode(t)
	node.setDown()

	err := store.Pin(context.Background(), "QmAnything")
	assert.ErrorIs(t, err, domain.ErrTechnical)
}

func TestStore_Ping(t *testing.T) {
	_, store := newFakeNode(t)
	assert.NoError(t, store.Ping(context.Background()))

	unreachable, err := NewStore("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.ErrorIs(t, unreachable.Ping(context.Background()), domain.ErrConnection)
}
