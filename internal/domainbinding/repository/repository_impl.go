package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"gorm.io/gorm"
)

const bindingColumns = `id, hostname, business_id, status, verification_token, last_checked_at, dns_error, verified_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, binding *domain.DomainBinding) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO domain_bindings (`+bindingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		binding.ID,
		binding.Hostname,
		binding.BusinessID,
		binding.Status,
		binding.VerificationToken,
		binding.LastCheckedAt,
		binding.DNSError,
		binding.VerifiedAt,
		binding.CreatedAt,
		binding.UpdatedAt,
	).Error
}

func (r *repo) FindByHostname(ctx context.Context, db *gorm.DB, hostname string) (*domain.DomainBinding, error) {
	var binding domain.DomainBinding
	err := db.WithContext(ctx).Raw(
		`SELECT `+bindingColumns+` FROM domain_bindings WHERE hostname = ?`,
		hostname,
	).Scan(&binding).Error
	if err != nil {
		return nil, err
	}
	if binding.ID == 0 {
		return nil, nil
	}
	return &binding, nil
}

func (r *repo) DeleteByHostname(ctx context.Context, db *gorm.DB, hostname string) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM domain_bindings WHERE hostname = ?`, hostname)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]domain.DomainBinding, error) {
	var bindings []domain.DomainBinding
	err := db.WithContext(ctx).Raw(
		`SELECT `+bindingColumns+` FROM domain_bindings WHERE business_id = ? ORDER BY hostname ASC`,
		businessID,
	).Scan(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repo) UpdateVerification(ctx context.Context, db *gorm.DB, update domain.VerificationUpdate) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE domain_bindings
		 SET status = ?, last_checked_at = ?, dns_error = ?, verified_at = ?, updated_at = ?
		 WHERE hostname = ?`,
		update.Status,
		update.CheckedAt,
		update.DNSError,
		update.VerifiedAt,
		update.CheckedAt,
		update.Hostname,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListDueForVerification returns pending bindings and bindings last checked
// before checkedBefore, never-checked first, then oldest check first.
func (r *repo) ListDueForVerification(ctx context.Context, db *gorm.DB, checkedBefore time.Time, limit int) ([]domain.DomainBinding, error) {
	var bindings []domain.DomainBinding
	err := db.WithContext(ctx).Raw(
		`SELECT `+bindingColumns+` FROM domain_bindings
		 WHERE status = ? OR last_checked_at IS NULL OR last_checked_at < ?
		 ORDER BY CASE WHEN last_checked_at IS NULL THEN 0 ELSE 1 END, last_checked_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		checkedBefore,
		limit,
	).Scan(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repo) BusinessIsActive(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM businesses WHERE id = ? AND status = 'active'`,
		businessID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
