package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Registry owns hostname to business bindings and their verification state.
type Registry interface {
	Bind(ctx context.Context, hostname string, businessID snowflake.ID) (DomainBinding, error)
	Unbind(ctx context.Context, hostname string) error
	UnbindAllForBusiness(ctx context.Context, businessID snowflake.ID) (int, error)
	RecordVerification(ctx context.Context, req RecordVerificationRequest) (DomainBinding, error)
	Lookup(ctx context.Context, hostname string) (DomainBinding, error)
	ListByBusiness(ctx context.Context, businessID snowflake.ID) ([]DomainBinding, error)
	ListDueForVerification(ctx context.Context, now time.Time, recheckAfter time.Duration, limit int) ([]DomainBinding, error)
	// OnChange registers fn to run after a hostname is bound, unbound or
	// changes verification status.
	OnChange(fn func(hostname string))
}

type RecordVerificationRequest struct {
	Hostname  string
	Status    string
	CheckedAt time.Time
	DNSError  string
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidHostname  = errors.New("invalid_hostname")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrPlatformHostname = errors.New("platform_hostname")
	ErrBusinessNotFound = errors.New("business_not_found")
)
