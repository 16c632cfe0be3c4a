package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/internal/service"
	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/response"
)

const defaultRateLimitKeys = 8192

// RateLimitConfig bounds anonymous share lookups per client and token.
type RateLimitConfig struct {
	Window  time.Duration
	Burst   int
	MaxKeys int
	Metrics *service.MetricsService
	Logger  *zap.Logger
}

type windowCount struct {
	start time.Time
	count int
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	burst   int
	hits    *expirable.LRU[string, windowCount]
	now     func() time.Time
	metrics *service.MetricsService
	logger  *zap.Logger
}

// ShareRateLimit allows Burst requests per Window for each client IP and share
// token pair. A zero window or burst disables the limit.
func ShareRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return newRateLimiter(cfg).handle
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultRateLimitKeys
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	l := &rateLimiter{
		window:  cfg.Window,
		burst:   cfg.Burst,
		now:     time.Now,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if cfg.Window > 0 {
		l.hits = expirable.NewLRU[string, windowCount](cfg.MaxKeys, nil, cfg.Window)
	}
	return l
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 || l.burst <= 0 {
		c.Next()
		return
	}
	key := strings.Join([]string{c.ClientIP(), c.Param("token")}, "|")
	if !l.allow(key) {
		l.logger.Warn("share rate limit hit",
			zap.String("ip", c.ClientIP()),
			zap.String("path", c.FullPath()),
		)
		l.metrics.RecordShareResolution("resolve", service.ShareOutcomeRateLimited)
		response.Error(c, appErrors.ErrTooManyRequests)
		c.Abort()
		return
	}
	c.Next()
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.hits.Get(key)
	if !ok || now.Sub(entry.start) >= l.window {
		entry = windowCount{start: now}
	}
	if entry.count >= l.burst {
		return false
	}
	entry.count++
	l.hits.Add(key, entry)
	return true
}
