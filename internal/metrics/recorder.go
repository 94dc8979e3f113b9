package metrics

import "time"

// CacheResult labels artifact cache lookups.
type CacheResult string

const (
	CacheHit      CacheResult = "hit"       // served from memory
	CacheStoreHit CacheResult = "store_hit" // promoted from the persistent tier
	CacheMiss     CacheResult = "miss"
)

// BuildOutcome labels finished builds.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeDegraded BuildOutcome = "degraded" // unminified fallback
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeTimeout  BuildOutcome = "timeout"
)

// RegistryResult labels registry metadata fetches.
type RegistryResult string

const (
	RegistryOK       RegistryResult = "ok"
	RegistryNotFound RegistryResult = "not_found"
	RegistryError    RegistryResult = "error"
)

// Recorder defines observability hooks for cache, build and registry metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncCacheLookup(result CacheResult)
	IncBuildOutcome(outcome BuildOutcome)
	ObserveBuildDuration(d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	AddBuildsInFlight(delta int)
	IncJoinedWaiters()
	ObserveArtifactSize(bytes int)
	ObserveRegistryFetch(d time.Duration, result RegistryResult)
	IncRegistryRetry()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheLookup(CacheResult)                         {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)                       {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)                 {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration)         {}
func (NoopRecorder) AddBuildsInFlight(int)                              {}
func (NoopRecorder) IncJoinedWaiters()                                  {}
func (NoopRecorder) ObserveArtifactSize(int)                            {}
func (NoopRecorder) ObserveRegistryFetch(time.Duration, RegistryResult) {}
func (NoopRecorder) IncRegistryRetry()                                  {}

var _ Recorder = NoopRecorder{}
