package model

import (
	"fmt"
	"strings"
)

// SortField is a column the remote listing can be ordered by.
type SortField string

const (
	SortByTitle  SortField = "title"
	SortByPrice  SortField = "price"
	SortByRating SortField = "rating"
)

// SortDirection is the ordering direction.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortField validates a user-supplied sort column.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case SortByTitle, SortByPrice, SortByRating:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q (title, price, rating)", s)
}

// ParseSortDirection validates a user-supplied sort direction.
func ParseSortDirection(s string) (SortDirection, error) {
	switch d := SortDirection(strings.ToLower(strings.TrimSpace(s))); d {
	case SortAsc, SortDesc:
		return d, nil
	}
	return "", fmt.Errorf("unknown sort direction %q (asc, desc)", s)
}

// Flip returns the opposite direction.
func (d SortDirection) Flip() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// ProductQuery holds the remote fetch parameters derived from listing state.
type ProductQuery struct {
	Search string
	SortBy SortField
	Order  SortDirection
	Limit  int
	Skip   int
}

// ListingState is a snapshot of the product listing.
type ListingState struct {
	Items      []Product
	Total      int
	Page       int // 1-based
	PageSize   int
	Search     string
	SortField  SortField
	SortDir    SortDirection
	Loading    bool
	Submitting bool
	LastError  string
}

// PageCount reports the number of pages, never less than one.
func (s ListingState) PageCount() int {
	return PageCount(s.Total, s.PageSize)
}

// Query builds the remote parameters for the current state.
func (s ListingState) Query() ProductQuery {
	return ProductQuery{
		Search: s.Search,
		SortBy: s.SortField,
		Order:  s.SortDir,
		Limit:  s.PageSize,
		Skip:   Skip(s.Page, s.PageSize),
	}
}

// Clone returns a copy whose Items slice does not alias the receiver's.
func (s ListingState) Clone() ListingState {
	c := s
	c.Items = append([]Product(nil), s.Items...)
	return c
}

// PageCount is ceil(total/pageSize), at least 1.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Skip is the offset of the first item on a 1-based page.
func Skip(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
