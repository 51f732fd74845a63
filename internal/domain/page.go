package domain

import "math"

// Page is a slice of a larger ordered result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNo        int   `json:"page_no"`
	PageSize      int   `json:"page_size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	Last          bool  `json:"last"`
}

// NewPage builds page metadata for the given zero-based page.
func NewPage[T any](content []T, pageNo, pageSize int, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return Page[T]{
		Content:       content,
		PageNo:        pageNo,
		PageSize:      pageSize,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          pageNo+1 >= totalPages,
	}
}

// PageWindow converts a zero-based page into a store limit and offset.
//
// ok is false when the page starts beyond the range a store offset can
// address. Such a page is always empty.
func PageWindow(pageNo, pageSize int) (limit, offset int32, ok bool) {
	if pageNo < 0 || pageSize <= 0 || pageSize > math.MaxInt32 {
		return 0, 0, false
	}

	if pageNo > math.MaxInt32/pageSize {
		return 0, 0, false
	}

	return int32(pageSize), int32(pageNo * pageSize), true
}
