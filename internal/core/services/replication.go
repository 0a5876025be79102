package services

import (
	"context"
	"sync"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// ReplicaOutcome is the result of one replica call.
type ReplicaOutcome struct {
	Replica string
	Err     error
}

// ReplicaSet fans pin and unpin calls out to every configured replica.
// Each call runs concurrently, one goroutine per replica, and every outcome
// is collected. Failures are logged and counted but never returned as an
// error: replication is best-effort.
type ReplicaSet struct {
	replicas []driven.PinningReplica
}

// NewReplicaSet creates a set over replicas, keeping their order.
func NewReplicaSet(replicas ...driven.PinningReplica) *ReplicaSet {
	kept := make([]driven.PinningReplica, 0, len(replicas))
	for _, r := range replicas {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &ReplicaSet{replicas: kept}
}

// Replicas returns the configured replicas.
func (s *ReplicaSet) Replicas() []driven.PinningReplica {
	if s == nil {
		return nil
	}
	return s.replicas
}

// Len returns the number of replicas.
func (s *ReplicaSet) Len() int {
	return len(s.Replicas())
}

// PinAll pins cid on every replica.
func (s *ReplicaSet) PinAll(ctx context.Context, cid string) []ReplicaOutcome {
	return s.each(ctx, "pin", func(ctx context.Context, r driven.PinningReplica) error {
		return r.Pin(ctx, cid)
	}, cid)
}

// UnpinAll unpins cid on every replica.
func (s *ReplicaSet) UnpinAll(ctx context.Context, cid string) []ReplicaOutcome {
	return s.each(ctx, "unpin", func(ctx context.Context, r driven.PinningReplica) error {
		return r.Unpin(ctx, cid)
	}, cid)
}

// Tracked lists what each replica retains, in replica order.
func (s *ReplicaSet) Tracked(ctx context.Context) []domain.PinStatus {
	replicas := s.Replicas()
	statuses := make([]domain.PinStatus, len(replicas))

	var wg sync.WaitGroup
	for i, r := range replicas {
		wg.Add(1)
		go func(i int, r driven.PinningReplica) {
			defer wg.Done()
			cids, err := r.Tracked(ctx)
			if err != nil {
				logger.Warn("replica %s: list tracked: %v", r.Name(), err)
			}
			statuses[i] = domain.PinStatus{Replica: r.Name(), CIDs: cids, Err: err}
		}(i, r)
	}
	wg.Wait()

	return statuses
}

func (s *ReplicaSet) each(
	ctx context.Context,
	action string,
	call func(context.Context, driven.PinningReplica) error,
	cid string,
) []ReplicaOutcome {
	replicas := s.Replicas()
	outcomes := make([]ReplicaOutcome, len(replicas))

	var wg sync.WaitGroup
	for i, r := range replicas {
		wg.Add(1)
		go func(i int, r driven.PinningReplica) {
			defer wg.Done()
			err := call(ctx, r)
			outcomes[i] = ReplicaOutcome{Replica: r.Name(), Err: err}

			metrics.ReplicaPins.WithLabelValues(r.Name(), action, metrics.Result(err)).Inc()
			if err != nil {
				logger.Warn("replica %s: %s %s failed: %v", r.Name(), action, cid, err)
			} else {
				logger.Debug("replica %s: %s %s", r.Name(), action, cid)
			}
		}(i, r)
	}
	wg.Wait()

	return outcomes
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []ReplicaOutcome) []ReplicaOutcome {
	var failed []ReplicaOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// primaryReplica presents the primary store's pinning surface as a replica,
// so the pinning scheduler treats it like any other target.
type primaryReplica struct {
	store driven.StorageBackend
}

func (p primaryReplica) Name() string { return domain.PrimaryReplicaName }

func (p primaryReplica) Pin(ctx context.Context, cid string) error { return p.store.Pin(ctx, cid) }

func (p primaryReplica) Unpin(ctx context.Context, cid string) error { return p.store.Unpin(ctx, cid) }

func (p primaryReplica) Tracked(ctx context.Context) ([]string, error) {
	return p.store.ListPinned(ctx)
}
