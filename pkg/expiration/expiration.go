// Package expiration computes how long a stored response stays fresh.
//
// Two sources feed the decision: the caching headers of the original
// response and a runtime override read from the settings. The override is a
// floor, it never shortens a longer header lifetime.
package expiration

import (
	"net/http"
	"time"

	"github.com/cygnal-app/interceptor/rfc9111"
)

// Unset is the override value meaning "defer to the response headers".
const Unset int64 = -1

// HeaderSeconds returns the lifetime advertised by the response headers, in seconds.
// The max-age directive wins. Without it the lifetime is Expires minus now,
// which is negative when Expires lies in the past.
func HeaderSeconds(header http.Header, now time.Time) int64 {
	if maxAge, ok := rfc9111.ResponseCacheControl(header).MaxAge(); ok {
		return maxAge
	}
	if expires, ok := rfc9111.Expires(header); ok {
		return int64(expires.Sub(now) / time.Second)
	}
	return 0
}

// EffectiveTTL combines the header lifetime and the configured override.
//
//	override > 0: max(override, header)
//	otherwise:    header
//
// Negative results are clamped to zero, which means "do not cache".
func EffectiveTTL(headerSeconds, overrideSeconds int64) int64 {
	ttl := headerSeconds
	if overrideSeconds > 0 && overrideSeconds > ttl {
		ttl = overrideSeconds
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Cacheable reports whether either source grants a positive lifetime.
func Cacheable(headerSeconds, overrideSeconds int64) bool {
	return EffectiveTTL(headerSeconds, overrideSeconds) > 0
}

// ExpiresAt returns the instant an entry stored at cachedAt goes stale.
func ExpiresAt(cachedAt time.Time, ttlSeconds int64) time.Time {
	return cachedAt.Add(time.Duration(ttlSeconds) * time.Second)
}

// IsFresh reports whether now is strictly before cachedAt + ttl.
func IsFresh(cachedAt, now time.Time, ttlSeconds int64) bool {
	if ttlSeconds <= 0 {
		return false
	}
	return now.Before(ExpiresAt(cachedAt, ttlSeconds))
}

// Remaining returns the whole seconds left before expiry, zero when stale.
func Remaining(cachedAt, now time.Time, ttlSeconds int64) int64 {
	left := ExpiresAt(cachedAt, ttlSeconds).Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}
