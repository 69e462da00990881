// Package retry implements the Retry Policy (§4.4): error classification
// and backoff delay computation for part upload attempts.
package retry

import (
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Policy computes attempt caps and backoff delays for part uploads.
type Policy struct {
	// BaseDelay is the delay B used for attempt 0 (§4.4).
	BaseDelay time.Duration

	// Exponential selects `B × 2^k` growth over constant `B` per attempt.
	Exponential bool

	// Jitter adds up to ±20% randomization to the computed delay to avoid
	// thundering-herd resumes. Optional; correctness does not depend on it.
	Jitter bool
}

// New builds a Policy from the engine's configured retry_delay_ms and
// use_exponential_backoff settings.
func New(baseDelay time.Duration, exponential, jitter bool) Policy {
	return Policy{BaseDelay: baseDelay, Exponential: exponential, Jitter: jitter}
}

// Delay returns the backoff delay before the (attempt+1)-th try, where
// attempt is 0-based (the number of prior failed attempts).
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	if p.Exponential {
		delay = p.BaseDelay * time.Duration(1<<attempt)
	}
	if p.Jitter {
		delay = applyJitter(delay)
	}
	return delay
}

// applyJitter scales delay by a uniformly random factor in [0.8, 1.2].
func applyJitter(delay time.Duration) time.Duration {
	factor := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(delay) * factor)
}

// MaxAttempts returns the total number of attempts a part gets, including
// the first: max_retries + 1 (§4.4 caps).
func MaxAttempts(maxRetries int) int {
	return maxRetries + 1
}

// Classify maps a raw error from the Backend Client into the §7 taxonomy,
// preferring a wrapped uploadmodel sentinel when present and falling back to
// inspecting the stdlib network error chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, uploadmodel.ErrTransport),
		errors.Is(err, uploadmodel.ErrHTTPServer),
		errors.Is(err, uploadmodel.ErrHTTPClient),
		errors.Is(err, uploadmodel.ErrProtocol),
		errors.Is(err, uploadmodel.ErrInternal),
		errors.Is(err, uploadmodel.ErrCancelled):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return uploadmodel.ErrTransport
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return uploadmodel.ErrTransport
	}

	return uploadmodel.ErrInternal
}

// Recoverable reports whether err (after Classify) is a candidate for retry.
func Recoverable(err error) bool {
	return uploadmodel.Recoverable(Classify(err))
}
