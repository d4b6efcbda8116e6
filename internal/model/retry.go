package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retrying re-issues a prompt when the underlying invoker fails. Answers are
// never retried, however malformed; only invocation errors are.
type Retrying struct {
	next     Invoker
	attempts int
	logger   *slog.Logger
}

// WithRetries wraps next so each prompt is attempted up to attempts times
func WithRetries(next Invoker, attempts int, logger *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, attempts: attempts, logger: logger}
}

func (r *Retrying) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		start := time.Now()
		r.logger.DebugContext(ctx, "model.invoke",
			"attempt", attempt,
			"image_url", prompt.ImageURL,
			"prompt", prompt.Text,
		)

		out, err := r.next.Invoke(ctx, prompt)
		if err == nil {
			r.logger.DebugContext(ctx, "model.response",
				"attempt", attempt,
				"elapsed_ms", time.Since(start).Milliseconds(),
				"response", out,
			)
			return out, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.logger.WarnContext(ctx, "Model invocation failed", "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("model invocation failed: %w", lastErr)
}
