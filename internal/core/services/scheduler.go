package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// Ensure PinningScheduler implements the interface.
var _ driving.Scheduler = (*PinningScheduler)(nil)

// PinningSchedulerConfig configures asynchronous pinning.
type PinningSchedulerConfig struct {
	// Interval between runs. Defaults to one minute.
	Interval time.Duration

	// PageSize is the number of unpinned documents fetched per search.
	// Defaults to 50.
	PageSize int

	// MaxAttempts is the number of runs a document may stay unconfirmed
	// before it is abandoned. Zero retries forever.
	MaxAttempts int

	// Indexes restricts the scan. Empty scans every index.
	Indexes []string
}

// PinningReport summarises one scheduler run.
type PinningReport struct {
	Candidates int
	Confirmed  int
	Pending    int
	Abandoned  int
}

type pinCandidate struct {
	indexName  string
	documentID string
	contentID  string
}

func (c pinCandidate) key() string {
	return c.indexName + "/" + c.documentID
}

// PinningScheduler confirms documents indexed with pinned=false. Each run
// pins their content on every target (the primary store and each replica)
// missing it, then polls the targets' tracked lists. A document whose
// content every target tracks is marked pinned.
type PinningScheduler struct {
	config  PinningSchedulerConfig
	index   driven.IndexBackend
	targets []driven.PinningReplica

	runMu     sync.Mutex
	attempts  map[string]int
	abandoned map[string]struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPinningScheduler creates a scheduler pinning on store and replicas.
func NewPinningScheduler(
	config PinningSchedulerConfig,
	store driven.StorageBackend,
	index driven.IndexBackend,
	replicas *ReplicaSet,
) *PinningScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	targets := []driven.PinningReplica{primaryReplica{store: store}}
	targets = append(targets, replicas.Replicas()...)

	return &PinningScheduler{
		config:    config,
		index:     index,
		targets:   targets,
		attempts:  make(map[string]int),
		abandoned: make(map[string]struct{}),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *PinningScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler, waiting for an in-flight run.
func (s *PinningScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// run is the main scheduler loop.
func (s *PinningScheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runLogged(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return nil
		case <-ctx.Done():
			select {
			case <-stopCh:
				return nil
			default:
				return ctx.Err()
			}
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *PinningScheduler) runLogged(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("pinning: run failed: %v", err)
		}
		metrics.PinningRuns.WithLabelValues("error").Inc()
		return
	}
	metrics.PinningRuns.WithLabelValues("ok").Inc()
	if report.Candidates > 0 {
		logger.Info("pinning: %d candidates, %d confirmed, %d pending, %d abandoned",
			report.Candidates, report.Confirmed, report.Pending, report.Abandoned)
	}
}

// RunOnce performs a single pinning pass.
func (s *PinningScheduler) RunOnce(ctx context.Context) (PinningReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	candidates, err := s.collect(ctx)
	if err != nil {
		return PinningReport{}, err
	}
	report := PinningReport{Candidates: len(candidates)}
	if len(candidates) == 0 {
		metrics.PinningPending.Set(0)
		return report, nil
	}

	tracked := make([]map[string]struct{}, len(s.targets))
	for i, target := range s.targets {
		tracked[i] = s.snapshot(ctx, target)
	}

	// Pin whatever a target is missing, then re-poll those targets.
	repoll := make([]bool, len(s.targets))
	for _, c := range candidates {
		for i, target := range s.targets {
			if _, ok := tracked[i][c.contentID]; ok {
				continue
			}
			if err := target.Pin(ctx, c.contentID); err != nil {
				logger.Warn("pinning: %s pin %s: %v", target.Name(), c.contentID, err)
				continue
			}
			repoll[i] = true
		}
	}
	for i, target := range s.targets {
		if repoll[i] {
			tracked[i] = s.snapshot(ctx, target)
		}
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !confirmed(tracked, c.contentID) {
			s.attempts[c.key()]++
			if s.config.MaxAttempts > 0 && s.attempts[c.key()] >= s.config.MaxAttempts {
				s.abandoned[c.key()] = struct{}{}
				delete(s.attempts, c.key())
				report.Abandoned++
				logger.Error("pinning: giving up on %s (%s) after %d attempts",
					c.key(), c.contentID, s.config.MaxAttempts)
				continue
			}
			report.Pending++
			continue
		}

		err := s.index.UpdateField(ctx, c.indexName, c.documentID, domain.FieldPinned, domain.Bool(true))
		if err != nil {
			logger.Warn("pinning: mark %s pinned: %v", c.key(), err)
			report.Pending++
			continue
		}
		delete(s.attempts, c.key())
		report.Confirmed++
	}

	metrics.PinningPending.Set(float64(report.Pending))
	return report, nil
}

// collect gathers every unpinned document before any is updated, since
// updates change the result set being paged through.
func (s *PinningScheduler) collect(ctx context.Context) ([]pinCandidate, error) {
	indexes := s.config.Indexes
	if len(indexes) == 0 {
		var err error
		indexes, err = s.index.Indexes(ctx)
		if err != nil {
			return nil, err
		}
	}

	query := domain.NewQuery().Equals(domain.FieldPinned, domain.Bool(false))
	var candidates []pinCandidate
	for _, name := range indexes {
		req := domain.NewPageRequest(0, s.config.PageSize)
		for {
			page, err := s.index.Search(ctx, name, query, req)
			if err != nil {
				return nil, err
			}
			for _, doc := range page.Elements {
				c := pinCandidate{indexName: doc.IndexName, documentID: doc.DocumentID, contentID: doc.ContentID}
				if _, gone := s.abandoned[c.key()]; gone {
					continue
				}
				candidates = append(candidates, c)
			}
			if page.IsLast() || page.IsEmpty() {
				break
			}
			req = page.NextPageRequest()
		}
	}
	return candidates, nil
}

func (s *PinningScheduler) snapshot(ctx context.Context, target driven.PinningReplica) map[string]struct{} {
	set := make(map[string]struct{})
	cids, err := target.Tracked(ctx)
	if err != nil {
		logger.Warn("pinning: %s list tracked: %v", target.Name(), err)
		return set
	}
	for _, cid := range cids {
		set[cid] = struct{}{}
	}
	return set
}

func confirmed(tracked []map[string]struct{}, cid string) bool {
	for _, set := range tracked {
		if _, ok := set[cid]; !ok {
			return false
		}
	}
	return true
}
