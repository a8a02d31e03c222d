package middleware

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter caps automated replies per chat
type RateLimiter interface {
	Allow(chatID string) bool
	Reset(chatID string)
}

// ChatRateLimiter implements per-chat token buckets
type ChatRateLimiter struct {
	enabled         bool
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
	maxChats        int
}

// NewRateLimiter creates a new rate limiter; a disabled limiter allows everything
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *ChatRateLimiter {
	if !cfg.Enabled {
		return &ChatRateLimiter{enabled: false}
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &ChatRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*rate.Limiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           burst,
		logger:          logger,
		cleanupInterval: time.Hour,
		maxChats:        10000,
	}
}

// Allow checks if a chat may receive another reply now
func (r *ChatRateLimiter) Allow(chatID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(chatID).Allow()
	if !allowed {
		r.logger.WithField("chatID", chatID).Warn("Rate limit exceeded")
	}
	return allowed
}

// Reset forgets the bucket of a chat
func (r *ChatRateLimiter) Reset(chatID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, chatID)
	r.mu.Unlock()
}

func (r *ChatRateLimiter) getLimiter(chatID string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[chatID]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[chatID]; exists {
		return limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	limiter = rate.NewLimiter(rate.Limit(rps), r.burst)
	r.limiters[chatID] = limiter

	return limiter
}

// Run drops all buckets when the map grows past maxChats, until stop is closed
func (r *ChatRateLimiter) Run(stop <-chan struct{}) {
	if !r.enabled {
		return
	}

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if len(r.limiters) > r.maxChats {
				r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
				r.limiters = make(map[string]*rate.Limiter)
			}
			r.mu.Unlock()
		}
	}
}
