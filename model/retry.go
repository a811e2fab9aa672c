package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
)

// RetryPolicy bounds model invocation: at most MaxAttempts calls with a fixed
// Delay between them, each attempt limited by Timeout.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Second, Timeout: 2 * time.Minute}

// Invoke calls m with bounded retry. Exhausted retries return an error
// wrapping core.ErrModelUnavailable and the last failure. Cancellation of ctx
// stops retrying immediately.
func Invoke(ctx context.Context, m Model, req Request, policy RetryPolicy, logger logging.Logger) (core.Message, int, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		msg, err := invokeOnce(ctx, m, req, policy.Timeout)
		if err == nil {
			return msg, attempt, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return core.Message{}, attempt, ctx.Err()
		}

		logger.Warn("llm.call.retry", "model", describe(m), "attempt", attempt, "max_attempts", attempts, "error", err.Error())

		if attempt == attempts {
			break
		}

		if policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return core.Message{}, attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return core.Message{}, attempts, fmt.Errorf("%w after %d attempts: %w", core.ErrModelUnavailable, attempts, lastErr)
}

func invokeOnce(ctx context.Context, m Model, req Request, timeout time.Duration) (core.Message, error) {
	callCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	msg, err := Collect(callCtx, m, req, nil)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return core.Message{}, fmt.Errorf("model call timed out after %s", timeout)
	}

	return msg, err
}
