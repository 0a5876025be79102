package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// Ensure BoundedStorage implements the interface.
var _ driven.StorageBackend = (*BoundedStorage)(nil)

// BoundedStorageConfig configures the read pool and write retries.
type BoundedStorageConfig struct {
	// PoolSize bounds concurrent reads. Defaults to 10.
	PoolSize int

	// ReadTimeout bounds each read, including time spent waiting for a
	// pool slot. Defaults to 30s.
	ReadTimeout time.Duration

	// WriteRetries is the number of extra write attempts after a
	// technical failure.
	WriteRetries int

	WriteRetryDelay time.Duration
}

// BoundedStorage wraps a StorageBackend so reads run on a bounded pool
// under an explicit deadline and writes are retried on technical failures.
// Pin, Unpin and ListPinned pass through unchanged.
type BoundedStorage struct {
	backend driven.StorageBackend
	config  BoundedStorageConfig
	slots   chan struct{}
}

// NewBoundedStorage wraps backend.
func NewBoundedStorage(backend driven.StorageBackend, config BoundedStorageConfig) *BoundedStorage {
	if config.PoolSize <= 0 {
		config.PoolSize = 10
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteRetries < 0 {
		config.WriteRetries = 0
	}
	return &BoundedStorage{
		backend: backend,
		config:  config,
		slots:   make(chan struct{}, config.PoolSize),
	}
}

// Name returns the wrapped backend name.
func (b *BoundedStorage) Name() string {
	return b.backend.Name()
}

// Write stores data, retrying technical failures.
func (b *BoundedStorage) Write(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}

	var lastErr error
	for attempt := 0; attempt <= b.config.WriteRetries; attempt++ {
		if attempt > 0 {
			metrics.StorageWriteRetries.Inc()
			logger.Warn("storage %s: write attempt %d failed, retrying: %v", b.backend.Name(), attempt, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(b.config.WriteRetryDelay):
			}
		}

		cid, err := b.backend.Write(ctx, data)
		if err == nil {
			return cid, nil
		}
		if !errors.Is(err, domain.ErrTechnical) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

type readResult struct {
	data []byte
	err  error
}

// Read fetches cid on the pool. If the deadline passes first, the fetch is
// cancelled and domain.ErrTimeout is returned without waiting for it.
func (b *BoundedStorage) Read(ctx context.Context, cid string) ([]byte, error) {
	if strings.TrimSpace(cid) == "" {
		return nil, fmt.Errorf("%w: content id is required", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.ReadTimeout)
	defer cancel()

	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, b.readAborted(ctx, cid)
	}

	results := make(chan readResult, 1)
	go func() {
		defer func() { <-b.slots }()
		data, err := b.backend.Read(ctx, cid)
		results <- readResult{data: data, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil && ctx.Err() != nil {
			return nil, b.readAborted(ctx, cid)
		}
		metrics.StorageReads.WithLabelValues(metrics.Result(r.err)).Inc()
		return r.data, r.err
	case <-ctx.Done():
		return nil, b.readAborted(ctx, cid)
	}
}

func (b *BoundedStorage) readAborted(ctx context.Context, cid string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.StorageReads.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w: read %s exceeded %s", domain.ErrTimeout, cid, b.config.ReadTimeout)
	}
	metrics.StorageReads.WithLabelValues("cancelled").Inc()
	return fmt.Errorf("read %s: %w", cid, ctx.Err())
}

// Pin marks cid for retention on the wrapped backend.
func (b *BoundedStorage) Pin(ctx context.Context, cid string) error {
	if strings.TrimSpace(cid) == "" {
		return fmt.Errorf("%w: content id is required", domain.ErrInvalidArgument)
	}
	return b.backend.Pin(ctx, cid)
}

// Unpin releases cid on the wrapped backend.
func (b *BoundedStorage) Unpin(ctx context.Context, cid string) error {
	if strings.TrimSpace(cid) == "" {
		return fmt.Errorf("%w: content id is required", domain.ErrInvalidArgument)
	}
	return b.backend.Unpin(ctx, cid)
}

// ListPinned lists retained content on the wrapped backend.
func (b *BoundedStorage) ListPinned(ctx context.Context) ([]string, error) {
	return b.backend.ListPinned(ctx)
}

// Ping checks the wrapped backend.
func (b *BoundedStorage) Ping(ctx context.Context) error {
	return b.backend.Ping(ctx)
}

// Close closes the wrapped backend.
func (b *BoundedStorage) Close() error {
	return b.backend.Close()
}
