package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/cache"
	"github.com/smallbiznis/storefront/internal/config"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sourceMiss = "miss"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Businesses businessdomain.Repository
	Registry   domainbindingdomain.Registry
	Cache      cache.TenantResolutionCache
	Metrics    *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	db             *gorm.DB
	log            *zap.Logger
	platformDomain string
	policy         *config.PolicyHolder
	businesses     businessdomain.Repository
	registry       domainbindingdomain.Registry
	cache          cache.TenantResolutionCache
	metrics        *metrics.Metrics
}

func New(p Params) *Resolver {
	return &Resolver{
		db:             p.DB,
		log:            p.Log.Named("tenant.resolver"),
		platformDomain: domainbindingdomain.NormalizeHostname(p.Cfg.PlatformDomain),
		policy:         p.Policy,
		businesses:     p.Businesses,
		registry:       p.Registry,
		cache:          p.Cache,
		metrics:        p.Metrics,
	}
}

func (r *Resolver) Resolve(ctx context.Context, hostOrSlug string) (domain.BusinessRef, error) {
	res, err := r.ResolveWithSource(ctx, hostOrSlug)
	if err != nil {
		return domain.BusinessRef{}, err
	}
	return res.Ref, nil
}

// ResolveWithSource returns domain.ErrNotFound for every input that does not
// route, malformed input included. Other errors come from the store.
func (r *Resolver) ResolveWithSource(ctx context.Context, hostOrSlug string) (domain.Resolution, error) {
	key := domainbindingdomain.NormalizeHostname(hostOrSlug)
	if key == "" {
		r.metrics.RecordTenantResolution(ctx, sourceMiss)
		return domain.Resolution{}, domain.ErrNotFound
	}

	source, value, ok := r.classify(key)
	if !ok {
		r.metrics.RecordTenantResolution(ctx, sourceMiss)
		return domain.Resolution{}, domain.ErrNotFound
	}

	ttl := r.policy.Get().Tenant.CacheTTL
	if ttl > 0 && r.cache != nil {
		if ref, found, hit := r.cache.Get(key); hit {
			if !found {
				r.metrics.RecordTenantResolution(ctx, sourceMiss)
				return domain.Resolution{}, domain.ErrNotFound
			}
			r.metrics.RecordTenantResolution(ctx, string(source))
			return domain.Resolution{Ref: ref, Source: source}, nil
		}
	}

	var (
		ref domain.BusinessRef
		err error
	)
	if source == domain.SourceCustomDomain {
		ref, err = r.resolveCustomDomain(ctx, value)
	} else {
		ref, err = r.resolveSlug(ctx, value)
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		if ttl > 0 && r.cache != nil {
			r.cache.SetMissing(key, ttl)
		}
		r.metrics.RecordTenantResolution(ctx, sourceMiss)
		return domain.Resolution{}, domain.ErrNotFound
	case err != nil:
		r.log.Error("tenant resolution failed", zap.String("source", string(source)), zap.Error(err))
		return domain.Resolution{}, err
	}

	if ttl > 0 && r.cache != nil {
		r.cache.SetFound(key, ref, ttl)
	}
	r.metrics.RecordTenantResolution(ctx, string(source))
	return domain.Resolution{Ref: ref, Source: source}, nil
}

// classify splits a normalized host into its routing path and lookup value.
func (r *Resolver) classify(host string) (domain.Source, string, bool) {
	if !strings.Contains(host, ".") {
		return domain.SourceSlug, host, true
	}
	if r.platformDomain != "" {
		if host == r.platformDomain {
			return "", "", false
		}
		if label, ok := strings.CutSuffix(host, "."+r.platformDomain); ok {
			if strings.Contains(label, ".") {
				return "", "", false
			}
			return domain.SourceSubdomain, label, true
		}
	}
	return domain.SourceCustomDomain, host, true
}

func (r *Resolver) resolveSlug(ctx context.Context, value string) (domain.BusinessRef, error) {
	if !slug.IsSlug(value) || r.policy.Get().Tenant.IsReservedSlug(value) {
		return domain.BusinessRef{}, domain.ErrNotFound
	}
	business, err := r.businesses.FindActiveBySlug(ctx, r.db, value)
	if err != nil {
		return domain.BusinessRef{}, err
	}
	if business == nil {
		return domain.BusinessRef{}, domain.ErrNotFound
	}
	return refOf(business), nil
}

func (r *Resolver) resolveCustomDomain(ctx context.Context, host string) (domain.BusinessRef, error) {
	if domainbindingdomain.ValidateHostname(host) != nil {
		return domain.BusinessRef{}, domain.ErrNotFound
	}
	binding, err := r.registry.Lookup(ctx, host)
	if errors.Is(err, domainbindingdomain.ErrNotFound) {
		return domain.BusinessRef{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BusinessRef{}, err
	}
	if !binding.Routable() {
		return domain.BusinessRef{}, domain.ErrNotFound
	}

	business, err := r.businesses.FindActiveByID(ctx, r.db, binding.BusinessID)
	if err != nil {
		return domain.BusinessRef{}, err
	}
	if business == nil {
		return domain.BusinessRef{}, domain.ErrNotFound
	}
	return refOf(business), nil
}

func refOf(b *businessdomain.Business) domain.BusinessRef {
	return domain.BusinessRef{
		ID:              b.ID,
		Slug:            b.Slug,
		TemplateVersion: b.TemplateVersion,
	}
}
