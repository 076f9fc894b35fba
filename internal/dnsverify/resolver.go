package dnsverify

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/config"
)

// TXTResolver looks up TXT records.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NewTXTResolver uses the system resolver, or the configured nameserver when
// VERIFIER_RESOLVER_ADDR is set.
func NewTXTResolver(cfg config.Config) TXTResolver {
	addr := strings.TrimSpace(cfg.Verifier.ResolverAddr)
	if addr == "" {
		return net.DefaultResolver
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			return d.DialContext(ctx, network, addr)
		},
	}
}
