// Package session implements the session store: short-lived per-user
// conversational state kept in a remote key-value cache with a local
// in-process fallback tier.
//
// Two implementations share one contract. LocalStore keeps everything in
// the fallback cache and is the store of record when no backend is
// configured. RemoteStore writes through to the backend, mirroring every
// write locally first, and degrades to the local tier whenever the backend
// is unavailable. Callers never see a backend failure, only a valid result
// or a not-found.
package session
