// Package pebble provides a persistent local content store on pebble.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/cid"
	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StorageBackend = (*Store)(nil)

// Key layout: payloads under "b/<cid>", pin markers under "p/<cid>".
const (
	blockPrefix = "b/"
	pinPrefix   = "p/"
	pinUpper    = "p0"
)

// Store is a content store backed by a pebble database.
type Store struct {
	db   *pebble.DB
	path string
}

// NewStore opens or creates the database in dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: pebble directory is empty", domain.ErrNotConfigured)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db, path: dir}, nil
}

// Name returns "pebble".
func (s *Store) Name() string {
	return "pebble"
}

// DB exposes the database for metrics collection.
func (s *Store) DB() *pebble.DB {
	return s.db
}

// Write stores data under its content id.
func (s *Store) Write(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := cid.Sum(data)
	if err != nil {
		return "", err
	}
	if err := s.db.Set([]byte(blockPrefix+id), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("%w: set block: %v", domain.ErrTechnical, err)
	}
	return id, nil
}

// Read returns the payload stored under id.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, closer, err := s.db.Get([]byte(blockPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get block: %v", domain.ErrTechnical, err)
	}
	defer closer.Close()

	// value is only valid until closer is closed.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Pin marks id retained. The content must already be stored.
func (s *Store) Pin(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, closer, err := s.db.Get([]byte(blockPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: get block: %v", domain.ErrTechnical, err)
	}
	closer.Close()

	if err := s.db.Set([]byte(pinPrefix+id), nil, pebble.Sync); err != nil {
		return fmt.Errorf("%w: set pin: %v", domain.ErrTechnical, err)
	}
	return nil
}

// Unpin drops the pin marker of id.
func (s *Store) Unpin(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete([]byte(pinPrefix+id), pebble.Sync); err != nil {
		return fmt.Errorf("%w: delete pin: %v", domain.ErrTechnical, err)
	}
	return nil
}

// ListPinned returns every pinned content id in key order.
func (s *Store) ListPinned(ctx context.Context) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pinPrefix),
		UpperBound: []byte(pinUpper),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterate pins: %v", domain.ErrTechnical, err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids = append(ids, string(iter.Key()[len(pinPrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iterate pins: %v", domain.ErrTechnical, err)
	}
	return ids, nil
}

// Ping fails once the database is closed.
func (s *Store) Ping(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("%w: pebble store closed", domain.ErrConnection)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
