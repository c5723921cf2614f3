// Package httpserver constructs the gateway's HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for the gateway surface. ReadHeaderTimeout bounds
// slow-header clients; no WriteTimeout is set because proxied responses may
// legitimately take up to the backend round-trip budget.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
