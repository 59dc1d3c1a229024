package chains

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Error classes the fetcher and dispatcher react to. Chain clients wrap
// provider failures with these sentinels so callers never inspect provider
// message strings themselves.
var (
	// ErrRateLimited marks a provider throttling response.
	ErrRateLimited = errors.New("rate limited")
	// ErrRangeTooLarge marks a "query returned too many results" / oversized
	// range rejection.
	ErrRangeTooLarge = errors.New("block range too large")
	// ErrSuperseded marks a submission the target rejected because its stored
	// version is already at or past the instruction's version. The desired end
	// state was reached by a later write, so this is a successful no-op.
	ErrSuperseded = errors.New("superseded by newer version")
)

// IsRateLimited reports whether err is a throttling response.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRangeTooLarge reports whether err is an oversized-range rejection.
func IsRangeTooLarge(err error) bool {
	return errors.Is(err, ErrRangeTooLarge)
}

// IsSuperseded reports whether err is a stale-version rejection.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}

// IsTransient reports whether err is worth retrying as-is: network failures,
// timeouts, and rate limits. Range rejections are not transient; they require
// a narrower query.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Provider message fragments that signal throttling or oversized ranges.
// Each RPC vendor words these differently; the lists cover the providers the
// deployments have run against.
var (
	rateLimitFragments = []string{
		"429",
		"too many requests",
		"rate limit",
		"exceeded",
		"throttle",
	}
	rangeFragments = []string{
		"query returned more than",
		"block range is too wide",
		"range too large",
		"too many results",
		"response size exceeded",
	}
)

// ClassifyRPCError wraps raw provider errors with the matching sentinel.
// Unrecognized errors pass through unchanged.
func ClassifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, f := range rangeFragments {
		if strings.Contains(msg, f) {
			return errors.Join(ErrRangeTooLarge, err)
		}
	}
	for _, f := range rateLimitFragments {
		if strings.Contains(msg, f) {
			return errors.Join(ErrRateLimited, err)
		}
	}
	return err
}
