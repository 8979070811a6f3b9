// Package rfc9211 models the Cache-Status response header field.
//
// §  The Cache-Status HTTP response header field indicates caches' handling of
// §  the request corresponding to the response it occurs within.
package rfc9211

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request (to be used when an implementation cannot
	// distinguish between uri-miss and vary-miss).
	FwdReasonMiss FwdReason = "miss"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus is the handling of a single request by a named cache.
type CacheStatus struct {
	Cache      string
	Status     Status
	FwdReason  FwdReason
	Stored     bool
	TimeToLive int
	Detail     string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// IsHit returns true if the response was served from the cache.
func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     Cache-Status   = sf-list
// §
// §  Each member of the list represents a cache that has handled the request.
func (cs CacheStatus) String() string {
	name := cs.Cache
	if name == "" {
		name = "Interceptor"
	}
	parts := []string{name}
	switch {
	case cs.Status == StatusHit:
		parts = append(parts, "hit")
	case cs.FwdReason != "":
		parts = append(parts, fmt.Sprintf("fwd=%s", cs.FwdReason))
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	if cs.TimeToLive > 0 {
		parts = append(parts, fmt.Sprintf("ttl=%d", cs.TimeToLive))
	}
	if cs.Detail != "" {
		parts = append(parts, fmt.Sprintf("detail=%q", cs.Detail))
	}
	return strings.Join(parts, "; ")
}
