package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// inviteRateLimitConfig configures per-remote-address rate limiting of
// inbound invitations, guarding the AppleMIDI control port the way an
// IP-keyed rate limiter guards an HTTP endpoint.
type inviteRateLimitConfig struct {
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
	maxAge          time.Duration
}

func defaultInviteRateLimitConfig() inviteRateLimitConfig {
	return inviteRateLimitConfig{
		rate:            rate.Limit(5),
		burst:           10,
		cleanupInterval: 5 * time.Minute,
		maxAge:          10 * time.Minute,
	}
}

type addrLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// addrRateLimiter rate-limits inbound IN invitations per source address,
// dropping excess invitations silently rather than answering with NO
// (an explicit rejection would itself be an amplification vector).
type addrRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*addrLimitEntry
	cfg     inviteRateLimitConfig
}

func newAddrRateLimiter(cfg inviteRateLimitConfig) *addrRateLimiter {
	return &addrRateLimiter{
		entries: make(map[string]*addrLimitEntry),
		cfg:     cfg,
	}
}

// allow reports whether an invitation from addr may proceed, creating a
// fresh token bucket for addresses seen for the first time.
func (rl *addrRateLimiter) allow(addr string) bool {
	rl.mu.Lock()
	entry, ok := rl.entries[addr]
	if !ok {
		entry = &addrLimitEntry{limiter: rate.NewLimiter(rl.cfg.rate, rl.cfg.burst)}
		rl.entries[addr] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// cleanup removes limiter entries not seen within maxAge, called from the
// session tick loop so no separate goroutine is needed.
func (rl *addrRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.cfg.maxAge)
	for addr, entry := range rl.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.entries, addr)
		}
	}
}
