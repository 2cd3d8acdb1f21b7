// Package server exposes the HTTP status endpoints: health, client
// statistics with the last cycle outcome, sanitized configuration and
// Prometheus metrics.
package server
