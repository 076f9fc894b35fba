package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, business *Business) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Business, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Business, error)
	FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Business, error)
	FindActiveBySlug(ctx context.Context, db *gorm.DB, slug string) (*Business, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetTemplateVersion(ctx context.Context, db *gorm.DB, id snowflake.ID, version int, now time.Time) (bool, error)
}
