package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
	// Set reports whether the caller asked for a page at all.
	Set bool
}

// GetPaginationParams reads ?page=&limit= from the request.
func GetPaginationParams(c echo.Context) PaginationParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))
	set := c.QueryParam("page") != "" || c.QueryParam("limit") != ""

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
		Set:      set,
	}
}

// Paginate returns the requested window of items, or all of them when no page was asked for.
func Paginate[T any](items []T, p PaginationParams) []T {
	if !p.Set {
		return items
	}
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
