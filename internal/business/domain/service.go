package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateBusinessRequest struct {
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	ContactEmail string         `json:"contact_email"`
	Metadata     map[string]any `json:"metadata"`
}

type Service interface {
	Create(ctx context.Context, req CreateBusinessRequest) (Business, error)
	GetByID(ctx context.Context, id snowflake.ID) (Business, error)
	GetBySlug(ctx context.Context, slug string) (Business, error)
	Deactivate(ctx context.Context, id snowflake.ID) (Business, error)
	PublishTemplate(ctx context.Context, id snowflake.ID, version int) (Business, error)
	// OnChange registers fn to run after a business stops routing or changes
	// its published template.
	OnChange(fn func(businessID snowflake.ID))
}

var (
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidSlug            = errors.New("invalid_slug")
	ErrReservedSlug           = errors.New("reserved_slug")
	ErrSlugTaken              = errors.New("slug_taken")
	ErrInvalidEmail           = errors.New("invalid_email")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidTemplateVersion = errors.New("invalid_template_version")
	ErrInactive               = errors.New("business_inactive")
	ErrNotFound               = errors.New("not_found")
)

// DomainUnbinder releases every custom hostname of a business.
type DomainUnbinder interface {
	UnbindAllForBusiness(ctx context.Context, businessID snowflake.ID) (int, error)
}
