package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type VerificationUpdate struct {
	Hostname   string
	Status     Status
	CheckedAt  time.Time
	DNSError   *string
	VerifiedAt *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, binding *DomainBinding) error
	FindByHostname(ctx context.Context, db *gorm.DB, hostname string) (*DomainBinding, error)
	DeleteByHostname(ctx context.Context, db *gorm.DB, hostname string) (bool, error)
	ListByBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) ([]DomainBinding, error)
	UpdateVerification(ctx context.Context, db *gorm.DB, update VerificationUpdate) (bool, error)
	ListDueForVerification(ctx context.Context, db *gorm.DB, checkedBefore time.Time, limit int) ([]DomainBinding, error)
	BusinessIsActive(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (bool, error)
}
