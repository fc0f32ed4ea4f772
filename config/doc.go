// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the cache backend URI, connection pool sizing, session TTL, retry
// and circuit breaker tuning, and health check intervals.
package config
