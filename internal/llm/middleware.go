package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Middleware decorates a Summarizer with a cross-cutting concern.
type Middleware func(Summarizer) Summarizer

// Wrap applies middlewares left to right: Wrap(s, A, B) == A(B(s)).
func Wrap(inner Summarizer, mws ...Middleware) Summarizer {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit throttles calls to rps per second with the given burst.
// rps <= 0 disables throttling.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Summarizer) Summarizer {
		rl := newRPSLimiter(rps, burst)
		if rl == nil {
			return next
		}
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next Summarizer
	rl   *rpsLimiter
}

func (c *rateLimited) Summarize(ctx context.Context, content, typeHint string) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Summarize(ctx, content, typeHint)
}

// Close stops the limiter's refill goroutine.
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return nil
}

// Retry retries failed calls up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and a done context stop it.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Summarizer) Summarizer {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Summarizer
	max  int
	base time.Duration
}

func (r *retrying) Summarize(ctx context.Context, content, typeHint string) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Summarize(ctx, content, typeHint)
		if err == nil {
			return out, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", last
}

// Logging records each call's type hint, input size, latency and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Summarizer) Summarizer {
		return Func(func(ctx context.Context, content, typeHint string) (string, error) {
			start := time.Now()
			out, err := next.Summarize(ctx, content, typeHint)
			attrs := []any{"type", typeHint, "input_chars", len(content), "took", time.Since(start)}
			if err != nil {
				logger.Warn("llm: summarize failed", append(attrs, "error", err)...)
				return "", err
			}
			logger.Debug("llm: summarize", attrs...)
			return out, nil
		})
	}
}
