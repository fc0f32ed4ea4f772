// Package retry wraps a single backend operation with backoff-and-retry,
// consulting the health monitor before attempting anything.
//
// Delays grow exponentially from a base, capped at a maximum, and are scaled
// by half-jitter so concurrent callers do not retry in lockstep. Wrapped
// calls are total: a backend failure produces the caller-supplied fallback
// value, never an error.
package retry
