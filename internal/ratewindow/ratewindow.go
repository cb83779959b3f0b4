// Package ratewindow defines the sliding-window accounting contract shared by
// the in-memory, Redis and Memcache backends.
//
// A window is a per-identity log of event timestamps, chronological by
// construction. CheckAndRecord prunes entries older than the window from the
// oldest end, inspects the remaining count against the limit, and appends the
// current time only when the check passes. A rejected check records nothing.
package ratewindow

import "context"

// Result reports the outcome of one check. Count is the number of events in
// the window at the moment of inspection, before any new event was appended.
type Result struct {
	Allowed bool
	Count   int64
	Limit   int64
}

// Limiter is the interface all window backends implement.
type Limiter interface {
	CheckAndRecord(ctx context.Context, identity string) (Result, error)
}
