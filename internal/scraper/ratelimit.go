package scraper

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/promptops/insight-pipeline/internal/logger"
)

// ErrRateLimited signals that the platform quota is exhausted and the reset
// is too far away to wait for. Callers treat it as a partial result, not a
// job failure.
var ErrRateLimited = errors.New("platform rate limit exhausted")

const (
	// maxResetWait bounds how long Check blocks for a quota reset.
	maxResetWait = 60 * time.Second
	resetMargin  = 2 * time.Second
)

// QuotaLimiter tracks a platform's remaining request quota from response
// headers (X-RateLimit-Remaining / X-RateLimit-Reset). State is shared across
// concurrent scrape jobs for the same platform.
type QuotaLimiter struct {
	mu        sync.Mutex
	platform  string
	remaining int
	resetAt   time.Time
	log       logger.Logger
}

// NewQuotaLimiter starts optimistic: the first request goes through and the
// real quota is learned from its response headers.
func NewQuotaLimiter(platform string, initialRemaining int, log logger.Logger) *QuotaLimiter {
	return &QuotaLimiter{
		platform:  platform,
		remaining: initialRemaining,
		log:       log,
	}
}

// Check blocks until at least minRemaining quota is available. If the quota
// is exhausted and resets within maxResetWait, it sleeps through the reset;
// otherwise it returns ErrRateLimited.
func (l *QuotaLimiter) Check(ctx context.Context, minRemaining int) error {
	l.mu.Lock()
	remaining, resetAt := l.remaining, l.resetAt
	l.mu.Unlock()

	if remaining > minRemaining {
		return nil
	}

	wait := time.Until(resetAt) + resetMargin
	if wait <= resetMargin {
		// Reset already passed; assume the window rolled over.
		l.mu.Lock()
		l.remaining = minRemaining + 1
		l.mu.Unlock()
		return nil
	}
	if wait > maxResetWait {
		l.log.Warn("Rate limit exhausted, reset too far away",
			logger.String("platform", l.platform),
			logger.Int("remaining", remaining),
			logger.Duration("until_reset", wait),
		)
		return ErrRateLimited
	}

	l.log.Info("Rate limit low, waiting for reset",
		logger.String("platform", l.platform),
		logger.Int("remaining", remaining),
		logger.Duration("wait", wait),
	)
	if err := sleep(ctx, wait); err != nil {
		return err
	}

	l.mu.Lock()
	l.remaining = minRemaining + 1
	l.mu.Unlock()
	return nil
}

// Update refreshes quota state from response headers. Missing or malformed
// headers leave the current state untouched.
func (l *QuotaLimiter) Update(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.remaining = remaining
	if resetUnix, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		l.resetAt = time.Unix(resetUnix, 0)
	}
}

// Remaining reports the last observed quota.
func (l *QuotaLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}
