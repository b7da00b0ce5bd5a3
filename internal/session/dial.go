package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default dial parameters.
const (
	defaultMaxAttempts = 5
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// Dialer establishes a new session.
type Dialer func(ctx context.Context) (Bridge, error)

// DialConfig configures [Dial].
type DialConfig struct {
	// MaxAttempts is the number of connection attempts before giving up.
	// Defaults to 5 if zero.
	MaxAttempts int

	// Backoff is the wait after the first failed attempt. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait between attempts. Defaults
	// to 30s if zero.
	MaxBackoff time.Duration
}

func (c DialConfig) withDefaults() DialConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Dial calls dial until it returns a session, waiting with exponential
// backoff between failed attempts. It gives up after cfg.MaxAttempts
// failures, returning all attempt errors joined, or when ctx is done.
//
// Dial only covers establishing the session. A session that drops later is
// not re-dialled.
func Dial(ctx context.Context, dial Dialer, cfg DialConfig) (Bridge, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.Backoff

	var errs []error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("session: dial: %w", errors.Join(append(errs, err)...))
		}

		b, err := dial(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("session: connected after retry", "attempt", attempt)
			}
			return b, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))

		if attempt == cfg.MaxAttempts {
			break
		}
		slog.Warn("session: connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", backoff,
			"err", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("session: dial: %w", errors.Join(append(errs, ctx.Err())...))
		case <-timer.C:
		}

		backoff = min(backoff*2, cfg.MaxBackoff)
	}

	return nil, fmt.Errorf("session: dial failed after %d attempts: %w", cfg.MaxAttempts, errors.Join(errs...))
}
