// Package memory provides an in-process pinning replica.
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Replica implements the interface.
var _ driven.PinningReplica = (*Replica)(nil)

// Replica records pins in a concurrent map.
type Replica struct {
	name string
	pins *xsync.MapOf[string, struct{}]
}

// NewReplica creates an empty replica.
func NewReplica(name string) *Replica {
	if name == "" {
		name = "memory"
	}
	return &Replica{
		name: name,
		pins: xsync.NewMapOf[string, struct{}](),
	}
}

// Name returns the replica name.
func (r *Replica) Name() string {
	return r.name
}

// Pin records id.
func (r *Replica) Pin(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: content id is empty", domain.ErrInvalidArgument)
	}
	r.pins.Store(id, struct{}{})
	return nil
}

// Unpin forgets id.
func (r *Replica) Unpin(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.pins.Delete(id)
	return nil
}

// Tracked returns the recorded ids, sorted.
func (r *Replica) Tracked(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, r.pins.Size())
	r.pins.Range(func(id string, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids, nil
}
