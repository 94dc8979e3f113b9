package httpserver

import (
	"net/http"

	"git.home.luguber.info/inful/packd/internal/artifact"
	handlers "git.home.luguber.info/inful/packd/internal/server/handlers"
)

// Dependencies are the services the HTTP surface exposes.
type Dependencies struct {
	Resolver handlers.Resolver
	Obtainer handlers.Obtainer
	Cache    handlers.Summarizer
	Headers  *artifact.Headers
	Runtime  handlers.Runtime

	// Optional: build ledger for /_builds.
	History handlers.BuildHistory
	// Optional: Prometheus handler mounted at the configured metrics path.
	MetricsHandler http.Handler
}
