// Package datastore provides a content store over an ipfs go-datastore.
//
// Payloads live under /blocks/<cid> and pin markers under /pins/<cid>.
// The default datastore is an in-memory map, which makes this backend
// the one used for tests and for running without an IPFS node.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/storage/cid"
	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.StorageBackend = (*Store)(nil)

const (
	blocksPrefix = "/blocks"
	pinsPrefix   = "/pins"
)

// Store is a content store over a go-datastore.
type Store struct {
	ds ds.Datastore
}

// NewStore wraps d. A nil d gets a thread-safe in-memory map.
func NewStore(d ds.Datastore) *Store {
	if d == nil {
		d = dssync.MutexWrap(ds.NewMapDatastore())
	}
	return &Store{ds: d}
}

// Name returns "datastore".
func (s *Store) Name() string {
	return "datastore"
}

// Write stores data under its content id.
func (s *Store) Write(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}
	id, err := cid.Sum(data)
	if err != nil {
		return "", err
	}
	if err := s.ds.Put(ctx, blockKey(id), data); err != nil {
		return "", fmt.Errorf("%w: put block: %v", domain.ErrTechnical, err)
	}
	return id, nil
}

// Read returns the payload stored under id.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := s.ds.Get(ctx, blockKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get block: %v", domain.ErrTechnical, err)
	}
	return data, nil
}

// Pin marks id retained. The content must already be stored.
func (s *Store) Pin(ctx context.Context, id string) error {
	has, err := s.ds.Has(ctx, blockKey(id))
	if err != nil {
		return fmt.Errorf("%w: has block: %v", domain.ErrTechnical, err)
	}
	if !has {
		return fmt.Errorf("%w: content %s", domain.ErrNotFound, id)
	}
	if err := s.ds.Put(ctx, pinKey(id), []byte{1}); err != nil {
		return fmt.Errorf("%w: put pin: %v", domain.ErrTechnical, err)
	}
	return nil
}

// Unpin drops the pin marker of id.
func (s *Store) Unpin(ctx context.Context, id string) error {
	if err := s.ds.Delete(ctx, pinKey(id)); err != nil && !errors.Is(err, ds.ErrNotFound) {
		return fmt.Errorf("%w: delete pin: %v", domain.ErrTechnical, err)
	}
	return nil
}

// ListPinned returns every pinned content id.
func (s *Store) ListPinned(ctx context.Context) ([]string, error) {
	results, err := s.ds.Query(ctx, query.Query{Prefix: pinsPrefix, KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: query pins: %v", domain.ErrTechnical, err)
	}
	defer results.Close()

	entries, err := results.Rest()
	if err != nil {
		return nil, fmt.Errorf("%w: read pins: %v", domain.ErrTechnical, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strings.TrimPrefix(e.Key, pinsPrefix+"/"))
	}
	return ids, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close closes the underlying datastore.
func (s *Store) Close() error {
	return s.ds.Close()
}

func blockKey(id string) ds.Key {
	return ds.NewKey(blocksPrefix + "/" + id)
}

func pinKey(id string) ds.Key {
	return ds.NewKey(pinsPrefix + "/" + id)
}
