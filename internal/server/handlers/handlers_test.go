package handlers

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/packd/internal/artifact"
	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/cache"
	"git.home.luguber.info/inful/packd/internal/ledger"
	"git.home.luguber.info/inful/packd/internal/resolve"
	"git.home.luguber.info/inful/packd/internal/server/responses"
)

type fakeResolver struct {
	res resolve.Resolution
	err error
	raw string
}

func (f *fakeResolver) ResolveRequest(_ context.Context, raw string) (resolve.Resolution, error) {
	f.raw = raw
	return f.res, f.err
}

type fakeObtainer struct {
	a     *artifact.Artifact
	err   error
	calls int
}

func (f *fakeObtainer) Obtain(context.Context, build.Request) (*artifact.Artifact, error) {
	f.calls++
	return f.a, f.err
}

func leftPad(t *testing.T) (build.Request, *artifact.Artifact) {
	t.Helper()
	req := build.NewRequest([]build.Package{{Name: "left-pad", Version: "1.3.0"}})
	a, err := artifact.New(req.Name, req.Hash, []byte("export default function leftPad(){}"))
	require.NoError(t, err)
	return req, a
}

func newBundleHandlers(res *fakeResolver, obt *fakeObtainer) *BundleHandlers {
	headers := artifact.NewHeaders(map[string]string{"Cache-Control": "public, max-age=31536000"})
	return NewBundleHandlers(res, obt, headers, nil)
}

func TestHandleBundle_ServesArtifact(t *testing.T) {
	req, a := leftPad(t)
	res := &fakeResolver{res: resolve.Resolution{Request: req}}
	obt := &fakeObtainer{a: a}
	h := newBundleHandlers(res, obt)

	rec := httptest.NewRecorder()
	h.HandleBundle(rec, httptest.NewRequest(http.MethodGet, "/left-pad@1.3.0", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/left-pad@1.3.0", res.raw)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, artifact.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, a.ETag(), rec.Header().Get("ETag"))
	assert.Equal(t, a.Integrity, rec.Header().Get(artifact.IntegrityHeader))
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))

	code, err := artifact.Decompress(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "export default function leftPad(){}", string(code))
}

func TestHandleBundle_Redirect(t *testing.T) {
	req, _ := leftPad(t)
	obt := &fakeObtainer{}
	h := newBundleHandlers(&fakeResolver{res: resolve.Resolution{Request: req, Redirect: true}}, obt)

	rec := httptest.NewRecorder()
	h.HandleBundle(rec, httptest.NewRequest(http.MethodGet, "/left-pad@^1.0.0", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/left-pad@1.3.0", rec.Header().Get("Location"))
	assert.Zero(t, obt.calls)
}

func TestHandleBundle_NotModified(t *testing.T) {
	req, a := leftPad(t)
	h := newBundleHandlers(&fakeResolver{res: resolve.Resolution{Request: req}}, &fakeObtainer{a: a})

	r := httptest.NewRequest(http.MethodGet, "/left-pad@1.3.0", nil)
	r.Header.Set("If-None-Match", a.ETag())
	rec := httptest.NewRecorder()
	h.HandleBundle(rec, r)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, a.ETag(), rec.Header().Get("ETag"))
}

func TestHandleBundle_Head(t *testing.T) {
	req, a := leftPad(t)
	h := newBundleHandlers(&fakeResolver{res: resolve.Resolution{Request: req}}, &fakeObtainer{a: a})

	rec := httptest.NewRecorder()
	h.HandleBundle(rec, httptest.NewRequest(http.MethodHead, "/left-pad@1.3.0", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
}

func TestHandleBundle_Errors(t *testing.T) {
	req, _ := leftPad(t)
	tests := []struct {
		name       string
		resolveErr error
		obtainErr  error
		method     string
		wantStatus int
		wantBody   string
	}{
		{name: "unknown package", resolveErr: resolve.ErrUnknownPackage, wantStatus: http.StatusBadRequest, wantBody: "invalid module\n"},
		{name: "unresolvable", resolveErr: resolve.ErrUnresolvableVersion, wantStatus: http.StatusBadRequest, wantBody: "invalid tag\n"},
		{name: "build failure", obtainErr: stdErrors.New("worker crashed"), wantStatus: http.StatusInternalServerError, wantBody: "worker crashed\n"},
		{name: "wrong method", method: http.MethodPost, wantStatus: http.StatusBadRequest, wantBody: "invalid HTTP method\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newBundleHandlers(
				&fakeResolver{res: resolve.Resolution{Request: req}, err: tt.resolveErr},
				&fakeObtainer{err: tt.obtainErr},
			)
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := httptest.NewRecorder()
			h.HandleBundle(rec, httptest.NewRequest(method, "/left-pad", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Empty(t, rec.Header().Get("Content-Encoding"))
		})
	}
}

func TestHandleFavicon(t *testing.T) {
	h := newBundleHandlers(&fakeResolver{}, &fakeObtainer{})
	rec := httptest.NewRecorder()
	h.HandleFavicon(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type fakeSummarizer []cache.Summary

func (f fakeSummarizer) Summaries() []cache.Summary { return append([]cache.Summary(nil), f...) }

func TestHandleCacheReport(t *testing.T) {
	h := NewCacheHandlers(fakeSummarizer{
		{Name: "react", Size: 2000, RawSize: 9000},
		{Name: "left-pad", Size: 300, RawSize: 600, Degraded: true},
		{Name: "vue", Size: 50000, RawSize: 200000},
	})

	rec := httptest.NewRecorder()
	h.HandleCacheReport(rec, httptest.NewRequest(http.MethodGet, "/_cache", nil))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Total cached bundles: 3 (52 kB)\n"), body)
	assert.Less(t, strings.Index(body, "left-pad"), strings.Index(body, "react"))
	assert.Contains(t, body, "unminified")
	assert.Contains(t, body, "┌")

	rec = httptest.NewRecorder()
	h.HandleCacheReport(rec, httptest.NewRequest(http.MethodGet, "/_cache?sort=size", nil))
	body = rec.Body.String()
	assert.Less(t, strings.Index(body, "vue"), strings.Index(body, "react"))
	assert.Less(t, strings.Index(body, "react"), strings.Index(body, "left-pad"))
}

func TestRenderCacheReport_Empty(t *testing.T) {
	assert.Equal(t, "Total cached bundles: 0 (0 B)\n\n", RenderCacheReport(nil))
}

func TestLandingHandler(t *testing.T) {
	h, err := NewLandingHandler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "<h1>packd</h1>")
	assert.Contains(t, string(body), "<code>")
}

type fakeRuntime struct{ readyErr error }

func (fakeRuntime) StartTime() time.Time { return time.Now().Add(-time.Minute) }
func (fakeRuntime) CachedBundles() int   { return 7 }
func (f fakeRuntime) Ready() error       { return f.readyErr }

type fakeHistory []ledger.Entry

func (f fakeHistory) Recent(_ context.Context, limit int) ([]ledger.Entry, error) {
	return f[:min(limit, len(f))], nil
}

func TestMonitoringHandlers(t *testing.T) {
	history := fakeHistory{{ID: "b", Outcome: "failed"}, {ID: "a", Outcome: "success"}}
	h := NewMonitoringHandlers(fakeRuntime{}, history, 10, nil)

	rec := httptest.NewRecorder()
	h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health responses.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 7, health.CachedBundles)
	assert.GreaterOrEqual(t, health.Uptime, 59.0)

	rec = httptest.NewRecorder()
	h.HandleBuilds(rec, httptest.NewRequest(http.MethodGet, "/_builds?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var builds responses.BuildsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &builds))
	assert.Equal(t, 1, builds.Count)
	assert.Equal(t, "b", builds.Builds[0].ID)

	rec = httptest.NewRecorder()
	h.HandleBuilds(rec, httptest.NewRequest(http.MethodGet, "/_builds?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitoringHandlers_NotReadyAndNoLedger(t *testing.T) {
	h := NewMonitoringHandlers(fakeRuntime{readyErr: stdErrors.New("tmp dir not writable")}, nil, 0, nil)

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "tmp dir not writable")

	rec = httptest.NewRecorder()
	h.HandleBuilds(rec, httptest.NewRequest(http.MethodGet, "/_builds", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
