package pinata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

func newTestReplica(t *testing.T, handler http.HandlerFunc) *Replica {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerAPIKey) != "key" || r.Header.Get(headerSecretKey) != "secret-value" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	r, err := NewReplica(Config{
		Endpoint:          srv.URL,
		APIKey:            "key",
		SecretKey:         "secret-value",
		RequestsPerSecond: 1000,
		Burst:             100,
	})
	require.NoError(t, err)
	return r
}

func TestNewReplica_RequiresKeys(t *testing.T) {
	_, err := NewReplica(Config{APIKey: "key"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestNewReplica_Defaults(t *testing.T) {
	r, err := NewReplica(Config{APIKey: "key", SecretKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "pinata", r.Name())
	assert.Equal(t, DefaultEndpoint, r.endpoint)
}

func TestReplica_StringHidesSecret(t *testing.T) {
	r, err := NewReplica(Config{APIKey: "key", SecretKey: "supersecretvalue"})
	require.NoError(t, err)
	assert.Contains(t, r.String(), "super***********")
	assert.NotContains(t, r.String(), "supersecretvalue")
	assert.Equal(t, "*********", obfuscate("abc"))
}

func TestReplica_Authenticate(t *testing.T) {
	r := newTestReplica(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/testAuthentication", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"Congratulations!"}`))
	})
	assert.NoError(t, r.Authenticate(context.Background()))

	r.secretKey = "wrong"
	assert.ErrorIs(t, r.Authenticate(context.Background()), domain.ErrConnection)
}

func TestReplica_Pin(t *testing.T) {
	bodies := make(chan pinRequest, 1)
	r := newTestReplica(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinHashToIPFS", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req pinRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		bodies <- req
		_, _ = w.Write([]byte(`{"id":"1","ipfsHash":"QmA","status":"searching"}`))
	})

	require.NoError(t, r.Pin(context.Background(), "QmA"))
	assert.Equal(t, "QmA", (<-bodies).HashToPin)
}

func TestReplica_Unpin(t *testing.T) {
	bodies := make(chan unpinRequest, 1)
	r := newTestReplica(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/removePinFromIPFS", r.URL.Path)
		var req unpinRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		bodies <- req
	})

	require.NoError(t, r.Unpin(context.Background(), "QmA"))
	assert.Equal(t, "QmA", (<-bodies).Hash)
}

func TestReplica_PinEmpty(t *testing.T) {
	r := newTestReplica(t, func(http.ResponseWriter, *http.Request) {})
	assert.ErrorIs(t, r.Pin(context.Background(), ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, r.Unpin(context.Background(), ""), domain.ErrInvalidArgument)
}

func TestReplica_PinFailure(t *testing.T) {
	r := newTestReplica(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	err := r.Pin(context.Background(), "QmA")
	assert.ErrorIs(t, err, domain.ErrTechnical)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestReplica_Tracked(t *testing.T) {
	r := newTestReplica(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/pinList", r.URL.Path)
		assert.Equal(t, "pinned", r.URL.Query().Get("status"))
		assert.Equal(t, "1000", r.URL.Query().Get("pageLimit"))
		_, _ = w.Write([]byte(`{"count":2,"rows":[{"id":"2","ipfs_pin_hash":"QmB"},{"id":"1","ipfs_pin_hash":"QmA"}]}`))
	})

	ids, err := r.Tracked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"QmA", "QmB"}, ids)
}

func TestReplica_RateLimitRespectsContext(t *testing.T) {
	r, err := NewReplica(Config{APIKey: "key", SecretKey: "secret", RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, err)
	require.True(t, r.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.Pin(ctx, "QmA"))
}
