// Package domain contains models and contracts for storefront businesses.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
)

// Business is a tenant selling through the shared storefront. Businesses are
// never hard-deleted.
type Business struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name            string            `gorm:"type:text;not null" json:"name"`
	Slug            string            `gorm:"type:varchar(63);not null;uniqueIndex:ux_businesses_slug" json:"slug"`
	ContactEmail    *string           `gorm:"type:text;column:contact_email" json:"contact_email,omitempty"`
	Status          Status            `gorm:"type:varchar(16);not null;index" json:"status"`
	TemplateVersion *int              `gorm:"column:published_template_version" json:"published_template_version,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"not null" json:"metadata"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
	DeactivatedAt   *time.Time        `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`
}

func (Business) TableName() string { return "businesses" }

func (b Business) IsActive() bool {
	return b.Status == StatusActive
}
