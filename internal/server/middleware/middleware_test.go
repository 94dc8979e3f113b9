package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

func chain(buf *bytes.Buffer, h http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return Chain(logger, errors.NewHTTPErrorAdapter(logger))(h)
}

func TestChain_CORSPreflight(t *testing.T) {
	called := false
	h := chain(&bytes.Buffer{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/react", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, AllowHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
	assert.False(t, called)
}

func TestChain_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	h := chain(&buf, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/left-pad", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/left-pad"`)
	assert.Contains(t, buf.String(), `"size":15`)
}

func TestChain_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	h := chain(&buf, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error\n", rec.Body.String())
	assert.Contains(t, buf.String(), "HTTP handler panic")
}
