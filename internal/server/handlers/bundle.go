package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/packd/internal/artifact"
	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/resolve"
)

// Resolver resolves a raw request path against the registry.
type Resolver interface {
	ResolveRequest(ctx context.Context, raw string) (resolve.Resolution, error)
}

// Obtainer returns the artifact for a resolved request, building it if needed.
type Obtainer interface {
	Obtain(ctx context.Context, req build.Request) (*artifact.Artifact, error)
}

// BundleHandlers serves bundle requests.
type BundleHandlers struct {
	resolver     Resolver
	obtainer     Obtainer
	headers      *artifact.Headers
	errorAdapter *errors.HTTPErrorAdapter
	logger       *slog.Logger
}

func NewBundleHandlers(resolver Resolver, obtainer Obtainer, headers *artifact.Headers, logger *slog.Logger) *BundleHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundleHandlers{
		resolver:     resolver,
		obtainer:     obtainer,
		headers:      headers,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
		logger:       logger,
	}
}

// HandleBundle serves GET /<token>[,<token>]... Requests whose resolution
// differs from what was asked for are redirected to the canonical path.
func (h *BundleHandlers) HandleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, "GET"))
		return
	}

	res, err := h.resolver.ResolveRequest(r.Context(), r.URL.Path)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if res.Redirect {
		h.logger.Debug("Redirecting to canonical bundle",
			logfields.Path(r.URL.Path),
			logfields.URL(res.Location()))
		http.Redirect(w, r, res.Location(), http.StatusFound)
		return
	}

	a, err := h.obtainer.Obtain(r.Context(), res.Request)
	if err != nil {
		if r.Context().Err() != nil {
			// The client went away; the build carries on without it.
			return
		}
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	if artifact.NotModified(r, a) {
		hdr := w.Header()
		for k, v := range h.headers.Static() {
			hdr.Set(k, v)
		}
		hdr.Set("ETag", a.ETag())
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.headers.Apply(w.Header(), a)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(a.Body); err != nil {
		h.logger.Debug("Bundle write interrupted", logfields.Bundle(a.Name), logfields.Error(err))
	}
}

// HandleFavicon answers browsers' favicon probes with no content.
func (h *BundleHandlers) HandleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
