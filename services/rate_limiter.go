package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter caps operations to a fixed number per sliding minute.
// It keeps the alert mailer inside the SMTP relay's sending limits.
type RateLimiter struct {
	mu         sync.Mutex
	perMinute  int
	timestamps []time.Time
}

// NewRateLimiter creates a limiter allowing rpm operations per minute.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		perMinute:  rpm,
		timestamps: make([]time.Time, 0),
	}
}

// Wait blocks until the next operation fits within the limit, or the
// context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Minute)

	// Drop timestamps that fell out of the window
	recent := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	r.timestamps = recent

	if len(r.timestamps) >= r.perMinute {
		oldest := r.timestamps[0]
		waitDuration := oldest.Add(time.Minute).Sub(now)

		if waitDuration > 0 {
			slog.Info("Send rate limit reached, waiting...",
				"waitSeconds", waitDuration.Seconds(),
				"rpm", r.perMinute,
			)

			select {
			case <-time.After(waitDuration):
				// Continue after wait
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	r.timestamps = append(r.timestamps, now)
	return nil
}
