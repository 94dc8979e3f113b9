package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/ledger"
	"git.home.luguber.info/inful/packd/internal/server/responses"
	"git.home.luguber.info/inful/packd/internal/version"
)

// Runtime is the view of the running service the admin handlers need.
type Runtime interface {
	StartTime() time.Time
	CachedBundles() int
	// Ready returns nil when the service can accept bundle requests.
	Ready() error
}

// BuildHistory lists recorded build attempts.
type BuildHistory interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// MonitoringHandlers contains the admin HTTP handlers.
type MonitoringHandlers struct {
	runtime      Runtime
	history      BuildHistory
	recent       int
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates the admin handlers. history may be nil when
// the ledger is disabled.
func NewMonitoringHandlers(runtime Runtime, history BuildHistory, recent int, logger *slog.Logger) *MonitoringHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if recent <= 0 {
		recent = 50
	}
	return &MonitoringHandlers{
		runtime:      runtime,
		history:      history,
		recent:       recent,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
	}
}

// HandleHealthCheck reports liveness.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, "GET"))
		return
	}
	health := &responses.HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		Version:       version.Version,
		Uptime:        time.Since(h.runtime.StartTime()).Seconds(),
		CachedBundles: h.runtime.CachedBundles(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryInternal, "failed to write health response").Build())
	}
}

// HandleReadiness returns 200 once the service can build bundles, 503 otherwise.
func (h *MonitoringHandlers) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := h.runtime.Ready(); err != nil {
		_ = writeJSON(w, http.StatusServiceUnavailable, responses.ReadyResponse{Status: "not ready", Reason: err.Error()})
		return
	}
	_ = writeJSON(w, http.StatusOK, responses.ReadyResponse{Status: "ready"})
}

// HandleBuilds lists recent build attempts. ?limit=N overrides the default.
func (h *MonitoringHandlers) HandleBuilds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, "GET"))
		return
	}
	if h.history == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NewError(errors.CategoryNotFound, "build ledger disabled").Build())
		return
	}

	limit := h.recent
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid limit").WithContext("limit", raw).Build())
			return
		}
		limit = n
	}

	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryInternal, "failed to read build ledger").Build())
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	_ = writeJSONPretty(w, r, http.StatusOK, responses.BuildsResponse{Count: len(entries), Builds: entries})
}
