// Package metrics provides the observability hooks used by the build pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	type Coordinator struct {
//	    recorder metrics.Recorder
//	}
//
// When metrics are enabled the daemon injects a PrometheusRecorder and serves
// its registry on the admin port through HTTPHandler.
package metrics
