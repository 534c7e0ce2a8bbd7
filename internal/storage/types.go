package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ListOptions provides pagination and filtering for memory listing.
// Results are always ordered by created_at.
type ListOptions struct {
	// Limit is the maximum number of records to return (default: 100).
	Limit int

	// Offset skips the first N records.
	Offset int

	// Type filters by memory type (equality). Empty string means no filter.
	Type string

	// CreatedAfter restricts to records created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time

	// CreatedBefore restricts to records created strictly before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// SortOrder is "asc" or "desc" on created_at (default: "asc").
	SortOrder string
}

// Normalize applies defaults to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "asc"
	}
}

// PaginatedResult is a page of results plus paging metadata.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of matching records.
	Total int

	// HasMore indicates whether records exist beyond this page.
	HasMore bool
}

// CacheEntry is one durable-tier cache record: a text key (stored as a
// 64-bit hash), its embedding, and the insertion time used for age-based
// cleanup.
type CacheEntry struct {
	Key        uint64
	Vector     []float64
	InsertedAt time.Time
}
