// Package connpool maintains one shared connection pool per backend endpoint.
//
// Pools are created lazily under a lock and live for the lifetime of the
// Registry. The registry is an explicit object injected at start-up rather
// than process-wide state, and exposes Reset for test isolation.
//
// Usage:
//
//	registry := connpool.NewRegistry(connpool.Options{
//	    MaxConnections: 30,
//	    ConnectTimeout: 1500 * time.Millisecond,
//	    SocketTimeout:  1500 * time.Millisecond,
//	})
//	client, err := registry.Get("redis://localhost:6379/0")
package connpool
