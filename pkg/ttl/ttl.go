// Package ttl computes and enforces entry expiry (spec §4.6). A TTL is
// supplied as either a bare integer number of seconds or a short-form
// duration string ("30s", "5m", "2h", "1d"); both resolve to an absolute
// ExpiresAt the engine stores alongside the entry. Expiry is enforced
// lazily — an expired entry reads back as not-found and is evicted on the
// next read that touches that key — plus a one-shot sweep the engine runs
// the first time it opens each workspace's file (see engine.sweepExpired).
package ttl

import (
	"strconv"
	"strings"
	"time"

	"github.com/kvstash/kvstash/pkg/kverrors"
)

// Parse resolves a TTL expression to a duration. Accepts a bare integer
// (seconds) or a short-form suffix: s (seconds), m (minutes), h (hours),
// d (days).
func Parse(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, kverrors.New(kverrors.ErrValidation, "ttl expression is empty")
	}

	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		if n <= 0 {
			return 0, kverrors.New(kverrors.ErrValidation, "ttl must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}

	unit := expr[len(expr)-1]
	numPart := expr[:len(expr)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return 0, kverrors.New(kverrors.ErrValidation, "invalid ttl expression: "+expr)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, kverrors.New(kverrors.ErrValidation, "invalid ttl unit: "+string(unit))
	}
}

// ExpiresAt resolves expr against now and returns the absolute expiry
// instant.
func ExpiresAt(expr string, now time.Time) (time.Time, error) {
	d, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// Expired reports whether expiresAt has passed as of now. A zero
// expiresAt means "no TTL set" and never expires.
func Expired(expiresAt time.Time, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}
