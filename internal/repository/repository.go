package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
)

// ContentType is the content type of stored entities.
const ContentType = "application/json"

// Repository stores and finds entities of type E through Mahuta.
type Repository[E any] struct {
	mahuta  driving.MahutaService
	mapping *Mapping[E]
}

// New creates a repository. The mapping is validated once here.
func New[E any](mahuta driving.MahutaService, mapping *Mapping[E]) (*Repository[E], error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Repository[E]{mahuta: mahuta, mapping: mapping}, nil
}

// Init creates the entity index if it does not exist.
func (r *Repository[E]) Init(ctx context.Context, mapping []byte) error {
	return r.mahuta.CreateIndex(ctx, r.mapping.IndexName, mapping)
}

// Save stores e and indexes its mapped attributes plus extra. A missing id
// is generated and set on e, as is the content hash.
func (r *Repository[E]) Save(ctx context.Context, e *E, extra domain.Fields) error {
	id := r.mapping.ID(*e)
	if id == "" {
		id = uuid.NewString()
		r.mapping.SetID(e, id)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encoding entity %s: %v", domain.ErrInvalidArgument, id, err)
	}

	meta, err := r.mahuta.Index(ctx, domain.IndexingRequest{
		IndexName:   r.mapping.IndexName,
		DocumentID:  id,
		ContentType: ContentType,
		Fields:      r.mapping.fields(*e, extra),
		Source:      domain.BytesSource(payload),
	})
	if err != nil {
		return err
	}
	if r.mapping.SetHash != nil {
		r.mapping.SetHash(e, meta.ContentID)
	}
	logger.Debug("Saved entity %s/%s -> %s", r.mapping.IndexName, id, meta.ContentID)
	return nil
}

// FindByID loads an entity.
// Returns domain.ErrNotFound if no document has the id.
func (r *Repository[E]) FindByID(ctx context.Context, id string) (E, error) {
	result, err := r.mahuta.GetByID(ctx, r.mapping.IndexName, id, true)
	if err != nil {
		var zero E
		return zero, err
	}
	return r.decode(result)
}

// FindByHash loads the entity stored under a content id.
func (r *Repository[E]) FindByHash(ctx context.Context, hash string) (E, error) {
	result, err := r.mahuta.GetByHash(ctx, r.mapping.IndexName, hash, true)
	if err != nil {
		var zero E
		return zero, err
	}
	return r.decode(result)
}

// ExistsByID reports whether a document has the id. Lookup failures other
// than not-found are returned.
func (r *Repository[E]) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := r.mahuta.GetByID(ctx, r.mapping.IndexName, id, false)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// DeleteByID removes the document. The stored entity stays pinned.
func (r *Repository[E]) DeleteByID(ctx context.Context, id string) error {
	return r.mahuta.Deindex(ctx, r.mapping.IndexName, id)
}

// FindAll returns a page of every entity.
func (r *Repository[E]) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[E], error) {
	return r.Search(ctx, nil, page)
}

// FullTextSearch matches text against the full text fields. With none
// mapped, it falls back to FindAll.
func (r *Repository[E]) FullTextSearch(ctx context.Context, text string, page domain.PageRequest) (domain.Page[E], error) {
	names := r.mapping.fullTextNames()
	if len(names) == 0 || text == "" {
		logger.Warn("no full text search on %s: no text or no full text fields", r.mapping.IndexName)
		return r.FindAll(ctx, page)
	}
	return r.Search(ctx, domain.NewQuery().FullText(text, names...), page)
}

// Search returns a page of entities matching query.
func (r *Repository[E]) Search(ctx context.Context, query *domain.Query, page domain.PageRequest) (domain.Page[E], error) {
	found, err := r.mahuta.Search(ctx, r.mapping.IndexName, query, page, true)
	if err != nil {
		return domain.Page[E]{}, err
	}

	entities := make([]E, 0, len(found.Elements))
	for _, result := range found.Elements {
		e, err := r.decode(result)
		if err != nil {
			return domain.Page[E]{}, err
		}
		entities = append(entities, e)
	}
	return domain.NewPage(entities, found.TotalElements, page), nil
}

// Count returns the number of stored entities.
func (r *Repository[E]) Count(ctx context.Context) (int64, error) {
	return r.mahuta.Count(ctx, r.mapping.IndexName, nil)
}

// UpdateIndexField sets one index field of an entity without rewriting the
// stored entity.
func (r *Repository[E]) UpdateIndexField(ctx context.Context, id, field string, value domain.Value) error {
	return r.mahuta.UpdateField(ctx, r.mapping.IndexName, id, field, value)
}

func (r *Repository[E]) decode(result domain.MetadataAndPayload) (E, error) {
	var e E
	if len(result.Payload) == 0 {
		return e, fmt.Errorf("%w: %s/%s has no payload", domain.ErrNotFound, result.IndexName, result.DocumentID)
	}
	if err := json.Unmarshal(result.Payload, &e); err != nil {
		return e, fmt.Errorf("%w: decoding entity %s/%s: %v", domain.ErrTechnical, result.IndexName, result.DocumentID, err)
	}
	if r.mapping.SetHash != nil {
		r.mapping.SetHash(&e, result.ContentID)
	}
	return e, nil
}
