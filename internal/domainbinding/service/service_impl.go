package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Repo  domain.Repository
}

type Registry struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	platformDomain string
	repo           domain.Repository

	mu        sync.RWMutex
	listeners []func(string)
}

func New(p Params) domain.Registry {
	return &Registry{
		db:             p.DB,
		log:            p.Log.Named("domainbinding.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		platformDomain: domain.NormalizeHostname(p.Cfg.PlatformDomain),
		repo:           p.Repo,
	}
}

// Bind claims hostname for businessID. Re-binding to the same business returns
// the existing binding unchanged.
func (r *Registry) Bind(ctx context.Context, hostname string, businessID snowflake.ID) (domain.DomainBinding, error) {
	host, err := r.normalize(hostname)
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if businessID == 0 {
		return domain.DomainBinding{}, domain.ErrBusinessNotFound
	}

	active, err := r.repo.BusinessIsActive(ctx, r.db, businessID)
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if !active {
		return domain.DomainBinding{}, domain.ErrBusinessNotFound
	}

	existing, err := r.repo.FindByHostname(ctx, r.db, host)
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if existing != nil {
		return resolveExisting(*existing, businessID)
	}

	now := r.clock.Now()
	binding := domain.DomainBinding{
		ID:                r.genID.Generate(),
		Hostname:          host,
		BusinessID:        businessID,
		Status:            domain.StatusPending,
		VerificationToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.repo.Insert(ctx, r.db, &binding); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.DomainBinding{}, err
		}
		// Lost the race on the hostname index; the winner decides.
		winner, findErr := r.repo.FindByHostname(ctx, r.db, host)
		if findErr != nil {
			return domain.DomainBinding{}, findErr
		}
		if winner == nil {
			return domain.DomainBinding{}, err
		}
		return resolveExisting(*winner, businessID)
	}

	r.log.Info("domain bound",
		zap.String("business_id", businessID.String()),
		zap.String("binding_id", binding.ID.String()),
	)
	r.notify(host)
	return binding, nil
}

func resolveExisting(existing domain.DomainBinding, businessID snowflake.ID) (domain.DomainBinding, error) {
	if existing.BusinessID != businessID {
		return domain.DomainBinding{}, domain.ErrConflict
	}
	return existing, nil
}

// Unbind releases hostname. Unbinding an unknown hostname succeeds.
func (r *Registry) Unbind(ctx context.Context, hostname string) error {
	host := domain.NormalizeHostname(hostname)
	if host == "" {
		return nil
	}
	deleted, err := r.repo.DeleteByHostname(ctx, r.db, host)
	if err != nil {
		return err
	}
	if deleted {
		r.notify(host)
	}
	return nil
}

func (r *Registry) UnbindAllForBusiness(ctx context.Context, businessID snowflake.ID) (int, error) {
	bindings, err := r.repo.ListByBusiness(ctx, r.db, businessID)
	if err != nil {
		return 0, err
	}

	var errs []error
	released := 0
	for _, binding := range bindings {
		deleted, err := r.repo.DeleteByHostname(ctx, r.db, binding.Hostname)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if deleted {
			released++
			r.notify(binding.Hostname)
		}
	}
	return released, errors.Join(errs...)
}

func (r *Registry) RecordVerification(ctx context.Context, req domain.RecordVerificationRequest) (domain.DomainBinding, error) {
	host := domain.NormalizeHostname(req.Hostname)
	if host == "" {
		return domain.DomainBinding{}, domain.ErrNotFound
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return domain.DomainBinding{}, err
	}

	checkedAt := req.CheckedAt.UTC()
	if req.CheckedAt.IsZero() {
		checkedAt = r.clock.Now()
	}

	existing, err := r.repo.FindByHostname(ctx, r.db, host)
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if existing == nil {
		return domain.DomainBinding{}, domain.ErrNotFound
	}

	verifiedAt := existing.VerifiedAt
	if status == domain.StatusVerified && existing.Status != domain.StatusVerified {
		verifiedAt = &checkedAt
	}

	var dnsError *string
	if msg := strings.TrimSpace(req.DNSError); msg != "" {
		dnsError = &msg
	}

	updated, err := r.repo.UpdateVerification(ctx, r.db, domain.VerificationUpdate{
		Hostname:   host,
		Status:     status,
		CheckedAt:  checkedAt,
		DNSError:   dnsError,
		VerifiedAt: verifiedAt,
	})
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if !updated {
		// Unbound between the read and the update.
		return domain.DomainBinding{}, domain.ErrNotFound
	}

	if existing.Status != status {
		r.log.Info("domain verification status changed",
			zap.String("business_id", existing.BusinessID.String()),
			zap.String("binding_id", existing.ID.String()),
			zap.String("from", string(existing.Status)),
			zap.String("to", string(status)),
		)
		r.notify(host)
	}

	result := *existing
	result.Status = status
	result.LastCheckedAt = &checkedAt
	result.DNSError = dnsError
	result.VerifiedAt = verifiedAt
	result.UpdatedAt = checkedAt
	return result, nil
}

func (r *Registry) Lookup(ctx context.Context, hostname string) (domain.DomainBinding, error) {
	host := domain.NormalizeHostname(hostname)
	if host == "" {
		return domain.DomainBinding{}, domain.ErrNotFound
	}
	binding, err := r.repo.FindByHostname(ctx, r.db, host)
	if err != nil {
		return domain.DomainBinding{}, err
	}
	if binding == nil {
		return domain.DomainBinding{}, domain.ErrNotFound
	}
	return *binding, nil
}

func (r *Registry) ListByBusiness(ctx context.Context, businessID snowflake.ID) ([]domain.DomainBinding, error) {
	bindings, err := r.repo.ListByBusiness(ctx, r.db, businessID)
	if err != nil {
		return nil, err
	}
	if bindings == nil {
		bindings = []domain.DomainBinding{}
	}
	return bindings, nil
}

func (r *Registry) ListDueForVerification(ctx context.Context, now time.Time, recheckAfter time.Duration, limit int) ([]domain.DomainBinding, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.repo.ListDueForVerification(ctx, r.db, now.UTC().Add(-recheckAfter), limit)
}

func (r *Registry) OnChange(fn func(hostname string)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notify(hostname string) {
	r.mu.RLock()
	listeners := append([]func(string){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(hostname)
	}
}

func (r *Registry) normalize(raw string) (string, error) {
	host := domain.NormalizeHostname(raw)
	if err := domain.ValidateHostname(host); err != nil {
		return "", err
	}
	if domain.IsUnderDomain(host, r.platformDomain) {
		return "", domain.ErrPlatformHostname
	}
	return host, nil
}
