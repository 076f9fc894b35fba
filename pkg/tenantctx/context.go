package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
)

// BusinessRef identifies the business a request was routed to.
type BusinessRef struct {
	ID              snowflake.ID `json:"id"`
	Slug            string       `json:"slug"`
	TemplateVersion *int         `json:"template_version,omitempty"`
}

func (r BusinessRef) IsZero() bool {
	return r.ID == 0
}

type keyType string

const businessRefKey keyType = "business_ref"

// WithBusiness attaches ref for logging and tracing. Services receive the
// business id as an explicit argument and never read it from here.
func WithBusiness(ctx context.Context, ref BusinessRef) context.Context {
	if ref.IsZero() {
		return ctx
	}
	ctx = context.WithValue(ctx, businessRefKey, ref)
	return obscontext.WithBusinessID(ctx, ref.ID.String())
}

func BusinessFromContext(ctx context.Context) (BusinessRef, bool) {
	if ctx == nil {
		return BusinessRef{}, false
	}
	ref, ok := ctx.Value(businessRefKey).(BusinessRef)
	return ref, ok && !ref.IsZero()
}
