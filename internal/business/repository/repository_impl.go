package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/pkg/db/option"
	"github.com/smallbiznis/storefront/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func store(db *gorm.DB) repository.Repository[domain.Business] {
	return repository.ProvideStore[domain.Business](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, business *domain.Business) error {
	return store(db).Create(ctx, business)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Business, error) {
	return store(db).FindOne(ctx, &domain.Business{ID: id})
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Business, error) {
	return store(db).FindOne(ctx, &domain.Business{Slug: slug})
}

func (r *repo) FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Business, error) {
	return store(db).FindOne(ctx, &domain.Business{ID: id, Status: domain.StatusActive})
}

func (r *repo) FindActiveBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Business, error) {
	return store(db).FindOne(ctx, &domain.Business{Slug: slug, Status: domain.StatusActive})
}

// Deactivate flips an active business to deactivated. It reports false when
// the business was missing or already deactivated.
func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	rows, err := store(db).UpdateWhere(ctx,
		map[string]any{
			"status":         domain.StatusDeactivated,
			"deactivated_at": now,
			"updated_at":     now,
		},
		activeByID(id),
	)
	return rows == 1, err
}

func (r *repo) SetTemplateVersion(ctx context.Context, db *gorm.DB, id snowflake.ID, version int, now time.Time) (bool, error) {
	rows, err := store(db).UpdateWhere(ctx,
		map[string]any{
			"published_template_version": version,
			"updated_at":                 now,
		},
		activeByID(id),
	)
	return rows == 1, err
}

func activeByID(id snowflake.ID) option.QueryOption {
	return option.WithWhere("id = ? AND status = ?", id, domain.StatusActive)
}
