package driving

import "context"

// Scheduler runs background work such as asynchronous pinning.
type Scheduler interface {
	// Start begins running scheduled work.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops running work.
	Stop() error
}
