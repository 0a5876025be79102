package domain

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequest_Validate(t *testing.T) {
	assert.NoError(t, NewPageRequest(0, 10).Validate())
	assert.NoError(t, NewPageRequest(2, 1).WithSort("date", SortDescending).Validate())
	assert.ErrorIs(t, NewPageRequest(-1, 10).Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, NewPageRequest(0, 0).Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, NewPageRequest(0, 10).WithSort("x", "SIDEWAYS").Validate(), ErrInvalidArgument)
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 0, NewPageRequest(0, 10).Offset())
	assert.Equal(t, 30, NewPageRequest(3, 10).Offset())
}

func TestPageRequest_IsAscending(t *testing.T) {
	assert.True(t, NewPageRequest(0, 1).IsAscending())
	assert.True(t, NewPageRequest(0, 1).WithSort("a", SortAscending).IsAscending())
	assert.False(t, NewPageRequest(0, 1).WithSort("a", SortDescending).IsAscending())
}

func TestSingleElementPage(t *testing.T) {
	p := SingleElementPage()
	assert.Equal(t, 0, p.PageNumber)
	assert.Equal(t, 1, p.PageSize)
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		size     int
		expected int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{7, 3, 3},
		{5, 0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TotalPages(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}

func TestNewPage(t *testing.T) {
	req := NewPageRequest(1, 2).WithSort("n", SortDescending)
	p := NewPage([]int{3, 4}, 5, req)

	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 1, p.PageNumber)
	assert.Equal(t, 2, p.PageSize)
	assert.False(t, p.IsLast())
	assert.False(t, p.IsEmpty())

	next := p.NextPageRequest()
	assert.Equal(t, 2, next.PageNumber)
	assert.Equal(t, "n", next.SortField)
	assert.Equal(t, SortDescending, next.SortDirection)
}

func TestNewPage_NilElements(t *testing.T) {
	p := NewPage[string](nil, 0, NewPageRequest(0, 5))
	assert.NotNil(t, p.Elements)
	assert.True(t, p.IsEmpty())
	assert.True(t, p.IsLast())
}

func TestMapPage(t *testing.T) {
	p := NewPage([]int{1, 2}, 2, NewPageRequest(0, 2))
	mapped := MapPage(p, func(i int) string { return "x" + strconv.Itoa(i) })

	assert.Equal(t, []string{"x1", "x2"}, mapped.Elements)
	assert.Equal(t, p.TotalElements, mapped.TotalElements)
	assert.Equal(t, p.TotalPages, mapped.TotalPages)
	assert.Equal(t, 1, mapped.NextPageRequest().PageNumber)
}
