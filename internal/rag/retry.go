package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docvault/docvault/internal/provider"
)

// RetryConfig configures retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// String matching is used because provider SDKs do not expose typed errors
// for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// completeWithRetry runs one logical completion with exponential backoff on
// transient errors. Each attempt is a distinct provider call and therefore
// acquires its own rate-limit slot before being issued.
func (e *Engine) completeWithRetry(ctx context.Context, req provider.CompletionRequest) (string, error) {
	var lastErr error
	delay := e.retry.InitialInterval

	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		text, err := e.provider.Complete(ctx, req)
		if err == nil {
			if attempt > 0 {
				e.logger.Debug("completion succeeded after retry", "attempts", attempt+1)
			}
			return text, nil
		}
		lastErr = err

		if !retryableError(err) {
			return "", err
		}
		if attempt == e.retry.MaxRetries {
			break
		}

		e.logger.Debug("retrying completion after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, e.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("completion after %d retries: %w", e.retry.MaxRetries, lastErr)
}
