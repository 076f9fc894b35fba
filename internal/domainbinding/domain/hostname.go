package domain

import (
	"net"
	"strings"
)

const (
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// NormalizeHostname lowercases and trims raw and strips any port and trailing dot.
// It never fails; malformed input normalizes to something ValidateHostname rejects.
func NormalizeHostname(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}

// ValidateHostname checks an already normalized hostname.
func ValidateHostname(host string) error {
	if host == "" || len(host) > maxHostnameLength {
		return ErrInvalidHostname
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ErrInvalidHostname
	}
	for _, label := range labels {
		if !validLabel(label) {
			return ErrInvalidHostname
		}
	}
	return nil
}

// IsUnderDomain reports whether host equals parent or is one of its subdomains.
func IsUnderDomain(host, parent string) bool {
	if parent == "" {
		return false
	}
	return host == parent || strings.HasSuffix(host, "."+parent)
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > maxLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
