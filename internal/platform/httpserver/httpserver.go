// Package httpserver builds the http.Server that fronts the card issuance
// API.
package httpserver

import (
	"net/http"
	"time"
)

// New returns the API server. Per-request deadlines live in the router's
// timeout middleware; here only the header read is bounded.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
