package ratelimit

import (
	"sync"
	"time"

	"github.com/smallbiznis/storefront/internal/clock"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL  = 15 * time.Minute
	maxLocalEntries = 10000
)

// LocalStore keeps one x/time/rate token bucket per key inside the process.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	clock   clock.Clock
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLocalStore(rps float64, burst int, clk clock.Clock) *LocalStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &LocalStore{
		entries: make(map[string]*storeEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		clock:   clk,
	}
}

func (s *LocalStore) Allow(key string) *RateLimitResult {
	now := s.clock.Now()
	lim := s.limiter(key, now)

	allowed := lim.AllowN(now, 1)
	remaining := lim.TokensAt(now)
	return newResult(allowed, s.burst, remaining, float64(s.rps), now)
}

func (s *LocalStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	if len(s.entries) >= maxLocalEntries {
		s.cleanupLocked(now)
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *LocalStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(s.clock.Now())
}

func (s *LocalStore) cleanupLocked(now time.Time) {
	cutoff := now.Add(-s.idleTTL)
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
