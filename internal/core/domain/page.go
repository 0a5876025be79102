package domain

import "fmt"

// DefaultPageSize is used when a page request carries no size.
const DefaultPageSize = 20

// SortDirection orders search results.
type SortDirection string

// Sort directions.
const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

// IsValid returns true if the direction is recognised. Empty means ascending.
func (d SortDirection) IsValid() bool {
	return d == "" || d == SortAscending || d == SortDescending
}

// PageRequest selects a zero-based page of results and an optional sort.
type PageRequest struct {
	PageNumber    int
	PageSize      int
	SortField     string
	SortDirection SortDirection
}

// NewPageRequest returns an unsorted page request.
func NewPageRequest(number, size int) PageRequest {
	return PageRequest{PageNumber: number, PageSize: size}
}

// DefaultPageRequest returns the first page with the default size.
func DefaultPageRequest() PageRequest {
	return NewPageRequest(0, DefaultPageSize)
}

// SingleElementPage returns a request for the first result only.
func SingleElementPage() PageRequest {
	return NewPageRequest(0, 1)
}

// WithSort returns a copy sorted by field.
func (p PageRequest) WithSort(field string, direction SortDirection) PageRequest {
	p.SortField = field
	p.SortDirection = direction
	return p
}

// Validate rejects negative page numbers, non-positive sizes and unknown
// directions.
func (p PageRequest) Validate() error {
	if p.PageNumber < 0 {
		return fmt.Errorf("%w: page number %d", ErrInvalidArgument, p.PageNumber)
	}
	if p.PageSize <= 0 {
		return fmt.Errorf("%w: page size %d", ErrInvalidArgument, p.PageSize)
	}
	if !p.SortDirection.IsValid() {
		return fmt.Errorf("%w: sort direction %q", ErrInvalidArgument, p.SortDirection)
	}
	return nil
}

// Offset returns the index of the first element of the page.
func (p PageRequest) Offset() int {
	return p.PageNumber * p.PageSize
}

// IsAscending reports whether results sort ascending.
func (p PageRequest) IsAscending() bool {
	return p.SortDirection != SortDescending
}

// Next returns the request for the following page.
func (p PageRequest) Next() PageRequest {
	p.PageNumber++
	return p
}

// Page is one page of results.
type Page[T any] struct {
	Elements      []T
	TotalElements int64
	TotalPages    int
	PageNumber    int
	PageSize      int

	request PageRequest
}

// NewPage builds a page for req.
func NewPage[T any](elements []T, total int64, req PageRequest) Page[T] {
	if elements == nil {
		elements = []T{}
	}
	return Page[T]{
		Elements:      elements,
		TotalElements: total,
		TotalPages:    TotalPages(total, req.PageSize),
		PageNumber:    req.PageNumber,
		PageSize:      req.PageSize,
		request:       req,
	}
}

// TotalPages returns ceil(total / size).
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// IsEmpty reports whether the page holds no elements.
func (p Page[T]) IsEmpty() bool {
	return len(p.Elements) == 0
}

// IsLast reports whether no page follows this one.
func (p Page[T]) IsLast() bool {
	return p.PageNumber+1 >= p.TotalPages
}

// NextPageRequest returns the request for the following page, keeping the
// sort of the request that produced this one.
func (p Page[T]) NextPageRequest() PageRequest {
	if p.request.PageSize > 0 {
		return p.request.Next()
	}
	return NewPageRequest(p.PageNumber+1, p.PageSize)
}

// MapPage converts the elements of a page.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Elements))
	for i, e := range p.Elements {
		out[i] = fn(e)
	}
	return Page[U]{
		Elements:      out,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		PageNumber:    p.PageNumber,
		PageSize:      p.PageSize,
		request:       p.request,
	}
}
