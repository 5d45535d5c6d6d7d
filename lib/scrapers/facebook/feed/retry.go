package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/core"

	"github.com/mazen160/go-random"
)

// ErrRetryBudgetExhausted means every allowed attempt failed with a
// retryable failure. The session is considered no longer viable, so the
// pipeline treats this as terminal for the run, not a per-page skip.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"-"`
	CapDelay    time.Duration `json:"-"`
}

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Millisecond * 500
	DefaultCapDelay    = time.Second * 30
)

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.CapDelay == 0 {
		c.CapDelay = DefaultCapDelay
	}
	return c
}

// Validate rejects configurations that cannot drive the retry loop.
// A bad retry budget is a programming contract violation, fatal at
// startup rather than degraded at runtime.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative: %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.CapDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.BaseDelay != 0 && c.CapDelay != 0 && c.CapDelay < c.BaseDelay {
		return fmt.Errorf("retry cap delay %s is below base delay %s", c.CapDelay, c.BaseDelay)
	}
	return nil
}

// RetryController wraps single-shot fetches with exponential backoff and
// jitter. Sleep is swappable so tests can observe waits without waiting.
type RetryController struct {
	Config RetryConfig
	Sleep  func(ctx context.Context, d time.Duration) error
}

func (r RetryController) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetch calls fn up to MaxAttempts times. Non-retryable failures return
// immediately; exceeding the budget returns ErrRetryBudgetExhausted
// wrapping the last failure.
func (r RetryController) Fetch(ctx context.Context, fn func(context.Context) (core.RawPage, error)) (core.RawPage, error) {
	cfg := r.Config.withDefaults()

	var lastErr error
	var prevDelay time.Duration
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		page, err := fn(ctx)
		if err == nil {
			return page, nil
		}

		var failure *core.FetchFailure
		if !errors.As(err, &failure) || !failure.Retryable() {
			return core.RawPage{}, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		// once the cap saturates, only the jitter varies; never wait
		// less than the previous attempt did
		if delay < prevDelay {
			delay = prevDelay
		}
		prevDelay = delay
		slog.DebugContext(ctx, "backing off before retry",
			"attempt", attempt+1,
			"delay", delay,
			"kind", failure.Kind,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return core.RawPage{}, err
		}
	}

	return core.RawPage{}, fmt.Errorf("%w: %s", ErrRetryBudgetExhausted, lastErr)
}

// backoffDelay is min(cap, base * 2^attempt) plus up to one base delay of
// jitter. Fetch clamps each wait to at least the previous one, so the
// jitter never makes the sequence shrink.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.CapDelay
	if attempt < 30 {
		exp := cfg.BaseDelay << uint(attempt)
		if exp < cfg.CapDelay {
			delay = exp
		}
	}

	jitterMs, err := random.IntRange(0, int(cfg.BaseDelay/time.Millisecond)+1)
	if err != nil {
		jitterMs = 0
	}
	return delay + time.Duration(jitterMs)*time.Millisecond
}
