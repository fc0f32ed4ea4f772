// Package httpserver provides a thin wrapper around http.Server with
// address validation and graceful shutdown, used for the diagnostics
// endpoints.
package httpserver
