package dnsverify

import (
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/config"
)

// Config controls how often custom domains are re-checked.
type Config struct {
	RunInterval   time.Duration
	RecheckAfter  time.Duration
	BatchSize     int
	LookupTimeout time.Duration
	JobTimeout    time.Duration
	TXTPrefix     string
	LockTTL       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		RecheckAfter:  6 * time.Hour,
		BatchSize:     100,
		LookupTimeout: 5 * time.Second,
		JobTimeout:    time.Minute,
		TXTPrefix:     "_storefront-verify",
		LockTTL:       2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	v := cfg.Verifier
	return Config{
		RunInterval:   v.RunInterval,
		RecheckAfter:  v.RecheckAfter,
		BatchSize:     v.BatchSize,
		LookupTimeout: v.LookupTimeout,
		TXTPrefix:     v.TXTPrefix,
		LockTTL:       v.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RecheckAfter <= 0 {
		c.RecheckAfter = defaults.RecheckAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = defaults.LookupTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	c.TXTPrefix = strings.Trim(strings.TrimSpace(c.TXTPrefix), ".")
	if c.TXTPrefix == "" {
		c.TXTPrefix = defaults.TXTPrefix
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// RecordName is the DNS name holding the verification token for hostname.
func (c Config) RecordName(hostname string) string {
	return c.TXTPrefix + "." + hostname
}
