package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cais-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retrying struct {
	base        Client
	maxAttempts int
}

// NewRetrying wraps a client with exponential backoff on transient failures.
// Only transport errors, timeouts, and 5xx provider errors are retried.
func NewRetrying(base Client, maxAttempts int) Client {
	if base == nil {
		return nil
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return retrying{base: base, maxAttempts: maxAttempts}
}

func (r retrying) Complete(ctx context.Context, messages []Message) (string, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.base.Complete(ctx, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !shouldRetry(err) || attempt == r.maxAttempts {
			break
		}

		telemetry.Warn("llm retry", map[string]any{
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}

	if shouldRetry(lastErr) && !errors.Is(lastErr, ErrUnavailable) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return "", lastErr
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "client.timeout") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
