// Package ops serves operational endpoints: health, pin status and
// prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server is the operational HTTP server. It implements driving.Scheduler
// so it can run alongside the other background workers.
type Server struct {
	mahuta driving.MahutaService
	router *mux.Router
	addr   string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server listening on addr once started.
func NewServer(mahuta driving.MahutaService, addr string) *Server {
	s := &Server{
		mahuta: mahuta,
		router: mux.NewRouter(),
		addr:   addr,
	}
	s.routes()
	s.router.Use(requestLogger)
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/pins", s.handlePins).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	logger.Info("ops server listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		_ = s.Stop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.mahuta.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "down", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "up"})
}

type pinStatus struct {
	Replica string   `json:"replica"`
	CIDs    []string `json:"cids"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	statuses := s.mahuta.Pins(r.Context())
	out := make([]pinStatus, len(statuses))
	for i, st := range statuses {
		out[i] = pinStatus{Replica: st.Replica, CIDs: st.CIDs}
		if out[i].CIDs == nil {
			out[i].CIDs = []string{}
		}
		if st.Err != nil {
			out[i].Error = st.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("ops: write response: %v", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("ops: %s %s took %s", r.Method, r.URL.Path, time.Since(start))
	})
}
