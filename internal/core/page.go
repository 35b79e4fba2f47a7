package core

import "strings"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps Offset far from int overflow.
	MaxPage = 1_000_000
)

// Sort keys accepted by bill listings.
const (
	SortName      = "name"
	SortAmount    = "amount"
	SortDTStart   = "dtstart"
	SortCreatedAt = "created_at"
)

// PageParams selects a page of bills.
type PageParams struct {
	Page     int
	PageSize int
	Sort     string
	Order    string // asc or desc
	Query    string // case-insensitive name substring
}

// Normalize fills defaults and clamps out-of-range values.
func (p PageParams) Normalize() PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	switch p.Sort {
	case SortName, SortAmount, SortDTStart, SortCreatedAt:
	default:
		p.Sort = SortName
	}
	p.Order = strings.ToLower(p.Order)
	if p.Order != "desc" {
		p.Order = "asc"
	}
	p.Query = strings.TrimSpace(p.Query)
	return p
}

// Offset returns the number of rows to skip.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one page of results.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage wraps items fetched with params p out of total rows.
func NewPage[T any](items []T, total int, p PageParams) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PageSize > 0 {
		pages = (total + p.PageSize - 1) / p.PageSize
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}

// Paginate slices an in-memory, already ordered list.
func Paginate[T any](all []T, p PageParams) Page[T] {
	start := p.Offset()
	if start < 0 || start > len(all) {
		start = len(all)
	}
	end := start + p.PageSize
	if end < start || end > len(all) {
		end = len(all)
	}
	return NewPage(all[start:end], len(all), p)
}
