// Package fallback implements the local in-process cache tier that keeps the
// session store serving when the remote backend is down. It is a plain
// TTL map behind one lock, with on-demand cleanup instead of a background
// sweeper.
package fallback
