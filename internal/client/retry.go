package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

// Doer is the subset of *http.Client used by RetryTransport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ErrNetwork matches any *NetworkError via errors.Is.
var ErrNetwork = errors.New("network failure")

// NetworkError is returned once every attempt failed at the connection level.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RetryPolicy bounds retries of connection-level failures. Backoff[i] is the
// wait before retry i+1; the last entry is reused when retries outnumber it.
type RetryPolicy struct {
	MaxRetries int
	Backoff    []time.Duration
}

// DefaultRetryPolicy retries 3 times after 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// delay returns the wait before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := retry - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return p.Backoff[idx]
}

// TotalBackoff is the sum of all waits when every retry is used.
func (p RetryPolicy) TotalBackoff() time.Duration {
	var total time.Duration
	for retry := 1; retry <= p.MaxRetries; retry++ {
		total += p.delay(retry)
	}
	return total
}

// RetryTransport retries requests that fail before any response arrives.
// A received response is returned as-is whatever its status code.
type RetryTransport struct {
	doer   Doer
	policy RetryPolicy
	sleep  SleepFunc
	logger *zap.Logger
}

// TransportOption configures a RetryTransport.
type TransportOption func(*RetryTransport)

// WithSleep replaces the backoff wait. Tests use it to record delays.
func WithSleep(fn SleepFunc) TransportOption {
	return func(t *RetryTransport) { t.sleep = fn }
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *zap.Logger) TransportOption {
	return func(t *RetryTransport) { t.logger = logger }
}

// NewRetryTransport wraps doer with policy.
func NewRetryTransport(doer Doer, policy RetryPolicy, opts ...TransportOption) *RetryTransport {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	t := &RetryTransport{
		doer:   doer,
		policy: policy,
		sleep:  contextSleep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute performs req, retrying connection-level failures per the policy.
// Returns *NetworkError when all attempts fail, or the context error when the
// request context ends during a backoff wait.
func (t *RetryTransport) Execute(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	attempts := t.policy.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			observability.WindAPIRetriesTotal.Inc()
			delay := t.policy.delay(attempt - 1)
			t.logger.Warn("retrying upstream request",
				zap.String("url", req.URL.Path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := t.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry wait: %w", err)
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := t.doer.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &NetworkError{Attempts: attempt, Err: err}
		}
	}

	return nil, &NetworkError{Attempts: attempts, Err: lastErr}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
