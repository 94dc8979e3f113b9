// Package responses defines JSON response types used by packd's admin handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/packd/internal/ledger"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	Uptime        float64   `json:"uptime"`
	CachedBundles int       `json:"cached_bundles"`
}

// ReadyResponse reports readiness and, when not ready, why.
type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// BuildsResponse lists recent build attempts, newest first.
type BuildsResponse struct {
	Count  int            `json:"count"`
	Builds []ledger.Entry `json:"builds"`
}
