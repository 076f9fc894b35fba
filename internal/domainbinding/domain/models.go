// Package domain contains the custom domain registry contracts.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusVerified:
		return StatusVerified, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", ErrInvalidStatus
	}
}

// DomainBinding maps a custom hostname to exactly one business.
type DomainBinding struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Hostname          string       `gorm:"type:varchar(253);not null;uniqueIndex:ux_domain_bindings_hostname" json:"hostname"`
	BusinessID        snowflake.ID `gorm:"not null;index" json:"business_id"`
	Status            Status       `gorm:"type:varchar(16);not null;index" json:"status"`
	VerificationToken string       `gorm:"type:varchar(64);not null" json:"verification_token"`
	LastCheckedAt     *time.Time   `json:"last_checked_at,omitempty"`
	DNSError          *string      `gorm:"column:dns_error;type:text" json:"dns_error,omitempty"`
	VerifiedAt        *time.Time   `json:"verified_at,omitempty"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (DomainBinding) TableName() string { return "domain_bindings" }

// Routable reports whether the binding may serve storefront traffic.
func (b DomainBinding) Routable() bool {
	return b.Status == StatusVerified
}
