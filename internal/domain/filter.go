package domain

import "math"

type Filter struct {
	Page     int
	PageSize int
}

func ValidateFilters(ev *ErrValidation, f *Filter) {
	ev.Evaluate(f.Page > 0, "page", "must be greater than zero")
	ev.Evaluate(f.Page <= 10_000_000, "page", "must be a max of 10 million")
	ev.Evaluate(f.PageSize > 0, "limit", "must be greater than zero")
	ev.Evaluate(f.PageSize <= 100, "limit", "must be a max of 100")
}

func (f *Filter) Limit() int {
	return f.PageSize
}

func (f *Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Metadata struct {
	CurrentPage  int `json:"currentPage,omitempty"`
	PageSize     int `json:"pageSize,omitempty"`
	FirstPage    int `json:"firstPage,omitempty"`
	TotalPages   int `json:"totalPages,omitempty"`
	TotalRecords int `json:"totalRecords,omitempty"`
}

func CalculateMetadata(totalRecords, pageSize, currentPage int) Metadata {
	if totalRecords == 0 {
		return Metadata{}
	}
	return Metadata{
		CurrentPage:  currentPage,
		PageSize:     pageSize,
		FirstPage:    1,
		TotalPages:   int(math.Ceil(float64(totalRecords) / float64(pageSize))),
		TotalRecords: totalRecords,
	}
}
