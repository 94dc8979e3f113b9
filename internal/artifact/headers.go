package artifact

import (
	"maps"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	ContentType     = "application/javascript; charset=utf-8"
	IntegrityHeader = "X-Integrity"
)

// Headers assembles bundle response headers. The static set can be swapped
// at runtime while requests are being served.
type Headers struct {
	static atomic.Pointer[map[string]string]
}

// NewHeaders creates a header set with the given static headers.
func NewHeaders(static map[string]string) *Headers {
	h := &Headers{}
	h.Update(static)
	return h
}

// Update replaces the static headers.
func (h *Headers) Update(static map[string]string) {
	cp := maps.Clone(static)
	if cp == nil {
		cp = map[string]string{}
	}
	h.static.Store(&cp)
}

// Static returns a copy of the current static headers.
func (h *Headers) Static() map[string]string {
	return maps.Clone(*h.static.Load())
}

// Apply writes the headers for serving a onto dst. Static headers are
// applied first so they cannot override the entity headers.
func (h *Headers) Apply(dst http.Header, a *Artifact) {
	for k, v := range *h.static.Load() {
		dst.Set(k, v)
	}
	dst.Set("Content-Type", ContentType)
	dst.Set("Content-Encoding", "gzip")
	dst.Set("Content-Length", strconv.Itoa(a.Size()))
	dst.Set("ETag", a.ETag())
	dst.Set(IntegrityHeader, a.Integrity)
	dst.Add("Vary", "Accept-Encoding")
}

// NotModified reports whether the request's If-None-Match matches a.
func NotModified(r *http.Request, a *Artifact) bool {
	inm := r.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	etag := a.ETag()
	for _, candidate := range strings.Split(inm, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
