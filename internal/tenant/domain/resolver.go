// Package domain defines hostname to business resolution.
package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/storefront/pkg/tenantctx"
)

type BusinessRef = tenantctx.BusinessRef

// Source records which routing path produced a resolution.
type Source string

const (
	SourceSlug         Source = "slug"
	SourceSubdomain    Source = "subdomain"
	SourceCustomDomain Source = "custom_domain"
)

type Resolution struct {
	Ref    BusinessRef
	Source Source
}

// Resolver maps an inbound host or bare slug to the business that owns it.
// Implementations perform no network I/O beyond the database.
type Resolver interface {
	Resolve(ctx context.Context, hostOrSlug string) (BusinessRef, error)
	ResolveWithSource(ctx context.Context, hostOrSlug string) (Resolution, error)
}

var ErrNotFound = errors.New("tenant_not_found")
