package scraper

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptops/insight-pipeline/internal/logger"
)

func TestQuotaLimiterCheckPassesWithQuota(t *testing.T) {
	l := NewQuotaLimiter("github", 60, logger.NewNopLogger())
	require.NoError(t, l.Check(context.Background(), 10))
}

func TestQuotaLimiterUpdateFromHeaders(t *testing.T) {
	l := NewQuotaLimiter("github", 60, logger.NewNopLogger())

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "42")
	h.Set("X-RateLimit-Reset", "1700000000")
	l.Update(h)

	assert.Equal(t, 42, l.Remaining())
	assert.Equal(t, time.Unix(1700000000, 0), l.resetAt)
}

func TestQuotaLimiterUpdateIgnoresMalformedHeaders(t *testing.T) {
	l := NewQuotaLimiter("github", 60, logger.NewNopLogger())

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "not-a-number")
	l.Update(h)

	assert.Equal(t, 60, l.Remaining())
}

func TestQuotaLimiterCheckRateLimitedWhenResetFarAway(t *testing.T) {
	l := NewQuotaLimiter("github", 60, logger.NewNopLogger())
	l.remaining = 3
	l.resetAt = time.Now().Add(10 * time.Minute)

	err := l.Check(context.Background(), 10)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestQuotaLimiterCheckRollsOverPastReset(t *testing.T) {
	l := NewQuotaLimiter("github", 60, logger.NewNopLogger())
	l.remaining = 0
	l.resetAt = time.Now().Add(-time.Minute)

	require.NoError(t, l.Check(context.Background(), 10))
	assert.Equal(t, 11, l.Remaining())
}
