package driven

import "context"

// PinningReplica mirrors pin and unpin calls onto an auxiliary retention
// service. Replicas fail independently of each other and of the primary
// store.
type PinningReplica interface {
	// Name identifies the replica in logs and metrics.
	Name() string

	// Pin asks the replica to retain content. Idempotent.
	Pin(ctx context.Context, cid string) error

	// Unpin asks the replica to release content. Idempotent.
	Unpin(ctx context.Context, cid string) error

	// Tracked lists the content ids the replica currently retains.
	Tracked(ctx context.Context) ([]string, error)
}
