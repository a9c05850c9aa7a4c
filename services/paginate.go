package services

import "leadboard/models"

// Paginate slices the display window out of a sorted, filtered sequence.
// page is clamped into [1, max(pages, 1)] so a window left out of range by a
// shrinking result lands on the new last page. limit below 1 is treated as 1.
func Paginate[T any](seq []T, page, limit int) ([]T, models.PageWindow) {
	if limit < 1 {
		limit = 1
	}
	total := len(seq)
	pages := (total + limit - 1) / limit

	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}

	w := models.PageWindow{Page: page, Limit: limit, Total: total, Pages: pages}

	start := (page - 1) * limit
	if start >= total {
		return []T{}, w
	}
	end := start + limit
	if end > total {
		end = total
	}
	return seq[start:end], w
}
