package services

import (
	"math"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 5
	maxPerPage     = 100
	// maxPage keeps Offset within a Postgres integer.
	maxPage        = math.MaxInt32 / maxPerPage
)

// Pagination is a validated page request.
type Pagination struct {
	Page    int
	PerPage int
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages is ceil(total / PerPage).
func (p Pagination) TotalPages(total int) int {
	if total == 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// ParsePagination reads page and per_page query values. Empty values take the
// defaults and per_page is capped at maxPerPage.
func ParsePagination(pageRaw, perPageRaw string) (Pagination, error) {
	p := Pagination{Page: defaultPage, PerPage: defaultPerPage}

	if pageRaw != "" {
		n, err := strconv.Atoi(pageRaw)
		if err != nil || n < 1 {
			return p, newError(ErrValidation, "page must be a positive integer")
		}
		if n > maxPage {
			return p, newError(ErrValidation, "page must be at most %d", maxPage)
		}
		p.Page = n
	}
	if perPageRaw != "" {
		n, err := strconv.Atoi(perPageRaw)
		if err != nil || n < 1 {
			return p, newError(ErrValidation, "per_page must be a positive integer")
		}
		p.PerPage = min(n, maxPerPage)
	}
	return p, nil
}
