package catalog

import (
	"errors"
	"strconv"

	"gorm.io/gorm"
)

const PageSize = 10

var ErrPageOutOfRange = errors.New("invalid page")

type Page[T any] struct {
	Page          int   `json:"page"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	IsPaginated   bool  `json:"isPaginated"`
	Items         []T   `json:"items"`
}

// ParsePage turns the "page" query value into a 1-based page number.
// Anything unparsable falls back to the first page.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Paginate counts the rows matched by query and loads one page of them.
// query must already carry its Model and Where clauses.
func Paginate[T any](query *gorm.DB, page int, order string, preloads ...string) (Page[T], error) {
	if page < 1 {
		page = 1
	}
	base := query.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return Page[T]{}, err
	}

	totalPages := int((total + PageSize - 1) / PageSize)
	if page > 1 && page > totalPages {
		return Page[T]{}, ErrPageOutOfRange
	}

	find := base
	if order != "" {
		find = find.Order(order)
	}
	for _, p := range preloads {
		find = find.Preload(p)
	}

	items := make([]T, 0, PageSize)
	if err := find.Offset((page - 1) * PageSize).Limit(PageSize).Find(&items).Error; err != nil {
		return Page[T]{}, err
	}

	return Page[T]{
		Page:          page,
		PageSize:      PageSize,
		TotalElements: total,
		TotalPages:    totalPages,
		IsPaginated:   totalPages > 1,
		Items:         items,
	}, nil
}
