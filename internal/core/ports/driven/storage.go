package driven

import "context"

// StorageBackend stores byte payloads in a content-addressed store.
// Backed by an IPFS node, a local pebble database, or an in-memory datastore.
type StorageBackend interface {
	// Name identifies the backend in logs.
	Name() string

	// Write stores a payload and returns its content id.
	// Returns domain.ErrInvalidArgument for an empty payload.
	Write(ctx context.Context, data []byte) (string, error)

	// Read fetches the payload of a content id.
	// Returns domain.ErrNotFound when the store does not hold it.
	Read(ctx context.Context, cid string) ([]byte, error)

	// Pin marks content for retention. Pinning a pinned id is a no-op.
	Pin(ctx context.Context, cid string) error

	// Unpin releases retention. Unpinning an unpinned id is a no-op.
	Unpin(ctx context.Context, cid string) error

	// ListPinned enumerates retained content ids.
	ListPinned(ctx context.Context) ([]string, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
