// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Default page bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage bounds page to >= 1 and pageSize to [1, maxSize]. A pageSize <= 0
// becomes DefaultPageSize; maxSize <= 0 means MaxPageSize.
func ClampPage(page, pageSize, maxSize int) (int, int) {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if page < 1 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// ParsePage reads page and page_size query values and clamps them.
func ParsePage(pageStr, sizeStr string) (page, pageSize int) {
	return ClampPage(AtoiDefault(pageStr, DefaultPage), AtoiDefault(sizeStr, DefaultPageSize), MaxPageSize)
}

// Offset returns the row offset of a clamped page.
func Offset(page, pageSize int) int {
	return (page - 1) * pageSize
}

// TotalPages returns how many pages of pageSize hold total rows.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
