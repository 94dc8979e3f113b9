package errors

import (
	"context"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter handles error presentation and status code determination for HTTP applications.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog logger.
// If logger is nil, the default package logger will be used.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if c, ok := AsClassified(err); ok {
		switch c.Category() {
		case CategoryValidation, CategoryConfig:
			return http.StatusBadRequest
		case CategoryNotFound:
			return http.StatusNotFound
		case CategoryNetwork:
			return http.StatusBadGateway
		case CategoryTimeout:
			return http.StatusGatewayTimeout
		case CategoryRuntime:
			return http.StatusServiceUnavailable
		case CategoryBuild, CategoryFileSystem, CategoryInternal:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}

// MessageFor returns the client-facing message for err. Classified errors expose
// only their message; causes and context stay in the logs.
func (a *HTTPErrorAdapter) MessageFor(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := AsClassified(err); ok {
		return c.Message()
	}
	return err.Error()
}

// WriteErrorResponse writes a plain-text error response and logs with appropriate level.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	body := a.MessageFor(err)

	h := w.Header()
	h.Del("Content-Encoding")
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))

	path := ""
	if r != nil {
		path = r.URL.Path
	}

	if c, ok := AsClassified(err); ok {
		attrs := []slog.Attr{
			slog.String("category", string(c.Category())),
			slog.Int("status", status),
			slog.String("path", path),
		}
		if c.Cause() != nil {
			attrs = append(attrs, slog.String("cause", c.Cause().Error()))
		}
		for k, v := range c.Context() {
			attrs = append(attrs, slog.Any(k, v))
		}
		a.logger.LogAttrs(requestContext(r), a.slogLevelFromSeverity(c.Severity()), c.Message(), attrs...)
		return
	}
	a.logger.Error("Unclassified request error", slog.String("error", err.Error()), slog.String("path", path))
}

// slogLevelFromSeverity maps severities to slog levels.
func (a *HTTPErrorAdapter) slogLevelFromSeverity(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError, SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}
