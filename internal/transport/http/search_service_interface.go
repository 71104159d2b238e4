package http

import (
	"context"

	"filterfinder/internal/filters"
	"filterfinder/internal/search"
	"filterfinder/internal/services"
)

// SearchServiceInterface defines the search operations the handlers need
type SearchServiceInterface interface {
	Start(ctx context.Context, req services.SearchRequest) (*services.SearchJob, error)
	Get(ctx context.Context, id string) (*services.SearchJob, error)
	List(ctx context.Context, filter services.SearchFilter) []*services.SearchJob
	Result(ctx context.Context, id string, family filters.Family) (*search.Result, error)
	ReportPath(ctx context.Context, id string, family filters.Family, format string) (string, error)
	Cancel(ctx context.Context, id string) error
}
