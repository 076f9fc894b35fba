package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSlugLength = 63

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Policy  *config.PolicyHolder
	Repo    domain.Repository
	Domains domain.DomainUnbinder `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  *config.PolicyHolder
	repo    domain.Repository
	domains domain.DomainUnbinder

	mu        sync.RWMutex
	listeners []func(snowflake.ID)
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("business.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		domains: p.Domains,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBusinessRequest) (domain.Business, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Business{}, domain.ErrInvalidName
	}

	businessSlug := strings.ToLower(strings.TrimSpace(req.Slug))
	if businessSlug == "" {
		businessSlug = slug.Make(name)
	}
	if len(businessSlug) > maxSlugLength || !slug.IsSlug(businessSlug) {
		return domain.Business{}, domain.ErrInvalidSlug
	}
	if s.policy.Get().Tenant.IsReservedSlug(businessSlug) {
		return domain.Business{}, domain.ErrReservedSlug
	}

	var contactEmail *string
	if email := strings.TrimSpace(req.ContactEmail); email != "" {
		if !strings.Contains(email, "@") {
			return domain.Business{}, domain.ErrInvalidEmail
		}
		contactEmail = &email
	}

	metadata := datatypes.JSONMap{}
	for key, value := range req.Metadata {
		metadata[key] = value
	}

	existing, err := s.repo.FindBySlug(ctx, s.db, businessSlug)
	if err != nil {
		return domain.Business{}, err
	}
	if existing != nil {
		return domain.Business{}, domain.ErrSlugTaken
	}

	now := s.clock.Now()
	business := domain.Business{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         businessSlug,
		ContactEmail: contactEmail,
		Status:       domain.StatusActive,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &business); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Business{}, domain.ErrSlugTaken
		}
		return domain.Business{}, err
	}

	s.log.Info("business created",
		zap.String("business_id", business.ID.String()),
		zap.String("slug", business.Slug),
	)
	return business, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Business, error) {
	if id == 0 {
		return domain.Business{}, domain.ErrInvalidID
	}
	business, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Business{}, err
	}
	if business == nil {
		return domain.Business{}, domain.ErrNotFound
	}
	return *business, nil
}

func (s *Service) GetBySlug(ctx context.Context, value string) (domain.Business, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !slug.IsSlug(value) {
		return domain.Business{}, domain.ErrNotFound
	}
	business, err := s.repo.FindBySlug(ctx, s.db, value)
	if err != nil {
		return domain.Business{}, err
	}
	if business == nil {
		return domain.Business{}, domain.ErrNotFound
	}
	return *business, nil
}

// Deactivate stops the business from routing and releases its custom domains.
// Deactivating an already deactivated business is a no-op.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (domain.Business, error) {
	business, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Business{}, err
	}
	if !business.IsActive() {
		return business, nil
	}

	if _, err := s.repo.Deactivate(ctx, s.db, id, s.clock.Now()); err != nil {
		return domain.Business{}, err
	}

	if s.domains != nil {
		released, err := s.domains.UnbindAllForBusiness(ctx, id)
		if err != nil {
			s.log.Error("failed to release custom domains",
				zap.String("business_id", id.String()),
				zap.Error(err),
			)
			return domain.Business{}, err
		}
		s.log.Info("business deactivated",
			zap.String("business_id", id.String()),
			zap.Int("released_domains", released),
		)
	}

	s.notify(id)
	return s.GetByID(ctx, id)
}

func (s *Service) PublishTemplate(ctx context.Context, id snowflake.ID, version int) (domain.Business, error) {
	if version < 1 {
		return domain.Business{}, domain.ErrInvalidTemplateVersion
	}
	business, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Business{}, err
	}
	if !business.IsActive() {
		return domain.Business{}, domain.ErrInactive
	}

	updated, err := s.repo.SetTemplateVersion(ctx, s.db, id, version, s.clock.Now())
	if err != nil {
		return domain.Business{}, err
	}
	if !updated {
		return domain.Business{}, domain.ErrInactive
	}

	s.notify(id)
	return s.GetByID(ctx, id)
}

func (s *Service) OnChange(fn func(businessID snowflake.ID)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Service) notify(id snowflake.ID) {
	s.mu.RLock()
	listeners := append([]func(snowflake.ID){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(id)
	}
}
