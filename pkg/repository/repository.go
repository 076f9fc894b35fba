package repository

import (
	"context"

	"github.com/smallbiznis/storefront/pkg/db/option"
)

// Repository is a generic gorm store for tables whose lookups fit a struct
// filter. FindOne returns nil, nil when nothing matches.
type Repository[T any] interface {
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// UpdateWhere applies values to the rows selected by opts and reports how
	// many rows changed. At least one option must add a WHERE clause.
	UpdateWhere(ctx context.Context, values map[string]any, opts ...option.QueryOption) (int64, error)
}
