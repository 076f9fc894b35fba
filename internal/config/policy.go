package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy holds runtime-tunable redemption and tenant routing settings.
type Policy struct {
	Redemption RedemptionPolicy `mapstructure:"redemption"`
	Tenant     TenantPolicy     `mapstructure:"tenant"`
}

type RedemptionPolicy struct {
	MaxAttempts   int           `mapstructure:"maxAttempts"`
	CommitTimeout time.Duration `mapstructure:"commitTimeout"`
}

type TenantPolicy struct {
	CacheTTL      time.Duration `mapstructure:"cacheTTL"`
	ReservedSlugs []string      `mapstructure:"reservedSlugs"`
}

func DefaultPolicy() Policy {
	return Policy{
		Redemption: RedemptionPolicy{
			MaxAttempts:   3,
			CommitTimeout: 5 * time.Second,
		},
		Tenant: TenantPolicy{
			CacheTTL:      30 * time.Second,
			ReservedSlugs: []string{"www", "api", "admin", "app", "static", "assets", "mail"},
		},
	}
}

// IsReservedSlug reports whether slug may never be claimed by a business.
func (p TenantPolicy) IsReservedSlug(slug string) bool {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, reserved := range p.ReservedSlugs {
		if strings.EqualFold(strings.TrimSpace(reserved), slug) {
			return true
		}
	}
	return false
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewPolicyHolder reads storefront.yml and keeps it hot-reloaded. A missing file
// falls back to DefaultPolicy.
func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/storefront")
	v.AddConfigPath("/var/lib/storefront/config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("storefront.redemption.maxAttempts", defaults.Redemption.MaxAttempts)
	v.SetDefault("storefront.redemption.commitTimeout", defaults.Redemption.CommitTimeout)
	v.SetDefault("storefront.tenant.cacheTTL", defaults.Tenant.CacheTTL)
	v.SetDefault("storefront.tenant.reservedSlugs", defaults.Tenant.ReservedSlugs)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Printf("[storefront-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[storefront-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// Get returns the current policy. A nil holder yields DefaultPolicy.
func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	policy, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return policy
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	var policy Policy
	if err := v.UnmarshalKey("storefront", &policy); err != nil {
		return Policy{}, err
	}
	if err := validatePolicy(policy); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func validatePolicy(policy Policy) error {
	if policy.Redemption.MaxAttempts < 1 {
		return errors.New("storefront.redemption.maxAttempts must be at least 1")
	}
	if policy.Redemption.CommitTimeout <= 0 {
		return errors.New("storefront.redemption.commitTimeout must be positive")
	}
	if policy.Tenant.CacheTTL < 0 {
		return errors.New("storefront.tenant.cacheTTL cannot be negative")
	}
	return nil
}
