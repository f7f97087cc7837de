package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig controls pipeline restarts after network errors.
// The zero value disables reconnection.
type ReconnectConfig struct {
	MaxRetries    int           // consecutive failed restarts before giving up
	RetryDelay    time.Duration // first backoff delay (default 1s)
	MaxRetryDelay time.Duration // backoff cap (default 30s)
}

// DefaultReconnectConfig suits network sources such as rtspsrc.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// Enabled reports whether restarts are attempted at all.
func (c ReconnectConfig) Enabled() bool {
	return c.MaxRetries > 0
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	return c
}

// Backoff returns the delay before the given 1-based attempt:
// RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func (c ReconnectConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		return c.MaxRetryDelay
	}
	delay := c.RetryDelay << uint(shift)
	if delay > c.MaxRetryDelay || delay <= 0 {
		delay = c.MaxRetryDelay
	}
	return delay
}

// retry calls connect until it succeeds. *streak counts consecutive failed
// attempts and survives across calls; the caller resets it once data flows
// again. It fails when the streak exceeds MaxRetries or ctx ends.
func retry(ctx context.Context, cfg ReconnectConfig, streak *int, connect func() error) error {
	for {
		*streak++
		if *streak > cfg.MaxRetries {
			return fmt.Errorf("gstsource: max retries exceeded (%d attempts)", cfg.MaxRetries)
		}

		delay := cfg.Backoff(*streak)
		slog.Warn("gstsource: restarting pipeline",
			"attempt", *streak,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connect()
		if err == nil {
			slog.Info("gstsource: pipeline restarted", "attempt", *streak)
			return nil
		}
		slog.Error("gstsource: restart failed", "attempt", *streak, "error", err)
	}
}
