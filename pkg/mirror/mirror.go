// Package mirror implements the freshness decision for cached upstream
// index documents: given what a caller already holds (etag, last_modified)
// and what is stored, decide whether the caller's copy is current or needs
// a refreshed Prefetch.
package mirror

import (
	"time"

	"github.com/kellnr/kellnr/pkg/index"
)

// State is the outcome of a freshness check against a cached package.
type State int

const (
	// NotFound means no cached row exists for the requested package.
	NotFound State = iota
	// UpToDate means the caller's validators match the stored ones.
	UpToDate
	// NeedsUpdate means a cached row exists but is stale or the caller's
	// validators don't match; Prefetch on the Result carries the current
	// cached document so the caller can serve it while refreshing.
	NeedsUpdate
)

func (s State) String() string {
	switch s {
	case NotFound:
		return "NotFound"
	case UpToDate:
		return "UpToDate"
	case NeedsUpdate:
		return "NeedsUpdate"
	default:
		return "Unknown"
	}
}

// Cached is the stored state of a mirrored package's prefetch document.
type Cached struct {
	Prefetch  index.Prefetch
	FetchedAt time.Time
}

// Result is the outcome of Check.
type Result struct {
	State    State
	Prefetch index.Prefetch
}

// Check decides the freshness state for a cached package given the
// caller-supplied validators. A zero-valued ttl disables TTL collapse.
//
// Missing supplied validators (empty string) never compare equal to a
// stored value, even if the stored value also happens to be empty.
func Check(cached *Cached, callerEtag, callerLastModified string, ttl time.Duration, now time.Time) Result {
	if cached == nil {
		return Result{State: NotFound}
	}

	etagMatches := callerEtag != "" && callerEtag == cached.Prefetch.Etag
	lastModMatches := callerLastModified != "" && callerLastModified == cached.Prefetch.LastModified

	if ttl > 0 && now.Sub(cached.FetchedAt) > ttl {
		return Result{State: NeedsUpdate, Prefetch: cached.Prefetch}
	}

	if etagMatches && lastModMatches {
		return Result{State: UpToDate}
	}

	return Result{State: NeedsUpdate, Prefetch: cached.Prefetch}
}
