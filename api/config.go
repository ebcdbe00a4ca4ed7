// Package api provides the HTTP API server for querying and managing the
// memory engine.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8900")
	ListenAddr string
}
