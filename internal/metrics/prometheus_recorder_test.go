package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncCacheLookup(CacheHit)
	pr.IncCacheLookup(CacheMiss)
	pr.IncCacheLookup(CacheMiss)
	pr.IncBuildOutcome(OutcomeSuccess)
	pr.ObserveBuildDuration(1500 * time.Millisecond)
	pr.ObserveStageDuration("install", 800*time.Millisecond)
	pr.AddBuildsInFlight(1)
	pr.AddBuildsInFlight(1)
	pr.AddBuildsInFlight(-1)
	pr.IncJoinedWaiters()
	pr.ObserveArtifactSize(4096)
	pr.ObserveRegistryFetch(20*time.Millisecond, RegistryOK)
	pr.IncRegistryRetry()

	assert.InDelta(t, 2, testutil.ToFloat64(pr.cacheLookups.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.buildsInFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.joinedWaiters), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncBuildOutcome(OutcomeFailed)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `packd_build_outcomes_total{outcome="failed"} 1`))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncCacheLookup(CacheHit)
	r.AddBuildsInFlight(1)
	r.ObserveRegistryFetch(time.Second, RegistryError)
}
