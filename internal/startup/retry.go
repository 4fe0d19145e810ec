// Package startup retries network-dependent initialization. The service is
// usually rebooted together with its *arr companions, so the first sync
// often races a media manager that is not listening yet.
package startup

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds the retry loop. Delays double from BaseDelay up to MaxDelay.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy suits initial integration syncs: a companion restarting
// alongside us is normally reachable within a few minutes.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
		MaxAttempts: 5,
	}
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Unreachable lists error fragments that mean the remote side is not up
// rather than rejecting us.
var unreachable = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"no route to host",
	"network is unreachable",
	"i/o timeout",
	"temporary failure in name resolution",
}

// Retryable reports whether the error looks like the remote side not being
// up yet. Anything else (auth, bad config, HTTP errors) fails immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range unreachable {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// policy is exhausted, or ctx is cancelled.
func WithRetry(ctx context.Context, op string, p Policy, logger zerolog.Logger, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("operation", op).Int("attempt", attempt).Msg("startup operation recovered")
			}
			return nil
		}
		if !Retryable(err) {
			logger.Error().Err(err).Str("operation", op).Msg("startup operation failed, not a connectivity error")
			return err
		}
		if attempt >= p.MaxAttempts {
			logger.Error().Err(err).Str("operation", op).Int("attempts", attempt).Msg("startup operation gave up")
			return err
		}

		wait := p.delay(attempt)
		logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("startup operation unreachable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
