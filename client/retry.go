package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// retryableError marks failures worth another attempt: network errors,
// 5xx and 429 responses.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	return retryableError{err: err}
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// Retry runs fn up to retries+1 times, doubling the wait after each failed
// attempt (backoff, 2*backoff, 4*backoff...). Only errors wrapped by retryable
// are retried. Waiting stops early when ctx is done.
func Retry(ctx context.Context, retries int, backoff time.Duration, fn func() error) error {
	attempts := retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var re retryableError
		if !errors.As(lastErr, &re) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := backoff << uint(attempt-1)
		log.Warn().Err(lastErr).Int("attempt", attempt).Int("max_attempts", attempts).
			Dur("wait", wait).Msg("Request failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (retry aborted: %v)", lastErr, ctx.Err())
		case <-time.After(wait):
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
