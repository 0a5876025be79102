package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
)

// stubMahuta answers Health and Pins; other calls are not used here.
type stubMahuta struct {
	driving.MahutaService
	healthErr error
	pins      []domain.PinStatus
}

func (s *stubMahuta) Health(context.Context) error { return s.healthErr }

func (s *stubMahuta) Pins(context.Context) []domain.PinStatus { return s.pins }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(&stubMahuta{}, "")
	rec := get(t, s.Handler(), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}

func TestHealth_Down(t *testing.T) {
	s := NewServer(&stubMahuta{healthErr: errors.New("index: connection refused")}, "")
	rec := get(t, s.Handler(), "/health")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"down","error":"index: connection refused"}`, rec.Body.String())
}

func TestPins(t *testing.T) {
	s := NewServer(&stubMahuta{pins: []domain.PinStatus{
		{Replica: domain.PrimaryReplicaName, CIDs: []string{"QmA", "QmB"}},
		{Replica: "backup", Err: errors.New("timeout")},
	}}, "")
	rec := get(t, s.Handler(), "/pins")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[
		{"replica":"primary","cids":["QmA","QmB"]},
		{"replica":"backup","cids":[],"error":"timeout"}
	]`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s := NewServer(&stubMahuta{}, "")
	rec := get(t, s.Handler(), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mahuta_")
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(&stubMahuta{}, "")
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	s := NewServer(&stubMahuta{}, "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStart_BadAddress(t *testing.T) {
	s := NewServer(&stubMahuta{}, "not-an-address")
	assert.Error(t, s.Start(context.Background()))
}

func TestStop_NotStarted(t *testing.T) {
	s := NewServer(&stubMahuta{}, "")
	assert.NoError(t, s.Stop())
}
