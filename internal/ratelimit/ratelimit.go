// Package ratelimit provides per-tenant sliding-window admission
// control for the export path.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimitExceeded is returned when a tenant's trailing-window request
// count is at the configured maximum.
var ErrLimitExceeded = errors.New("rate limit exceeded")

const window = 60 * time.Second

// Limiter tracks request timestamps per tenant over a trailing
// 60-second window. Windows are pruned lazily on each check and
// periodically by Sweep. Tenants never interact with each other's
// windows.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	now     func() time.Time
}

func New(limit int) *Limiter {
	return &Limiter{
		windows: map[string][]time.Time{},
		limit:   limit,
		now:     time.Now,
	}
}

// Allow admits or rejects one request for the tenant. On admission the
// request timestamp is recorded; rejection records nothing.
func (l *Limiter) Allow(tenantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(tenantID, now)
	if len(recent) >= l.limit {
		return fmt.Errorf("%w: tenant %s sent %d requests in the last minute", ErrLimitExceeded, tenantID, len(recent))
	}

	l.windows[tenantID] = append(recent, now)
	return nil
}

// Sweep prunes all tenant windows every interval until the context is
// cancelled, so idle tenants do not accumulate stale entries.
func (l *Limiter) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for tenantID := range l.windows {
				if recent := l.prune(tenantID, now); len(recent) == 0 {
					delete(l.windows, tenantID)
				} else {
					l.windows[tenantID] = recent
				}
			}
			l.mu.Unlock()
		}
	}
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) prune(tenantID string, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	stamps := l.windows[tenantID]
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
