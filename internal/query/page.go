package query

import "math"

// Page size limits applied by PageRequest.Normalize.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of a result set. Page is 1-based.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps r so that Page >= 1 and 1 <= Size <= MaxPageSize.
// A missing size becomes DefaultPageSize. Page is also capped so that
// Offset cannot overflow; the capped page is still past any real table.
func (r PageRequest) Normalize() PageRequest {
	if r.Size <= 0 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if limit := math.MaxInt / r.Size; r.Page-1 > limit {
		r.Page = limit + 1
	}
	return r
}

// Offset is (Page-1) * Size of the normalized request.
func (r PageRequest) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Size
}

// PageResult is one page of items plus the size of the whole filtered set.
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// TotalPages is ceil(total / size), and 0 for an empty set.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// MapPage returns p's metadata with items in place of p.Items.
func MapPage[T, U any](p PageResult[T], items []U) PageResult[U] {
	if items == nil {
		items = []U{}
	}
	return PageResult[U]{
		Items:      items,
		TotalCount: p.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}
