// Package handlers contains the HTTP handlers for packd.
//
// The bundle listener serves bundles, the landing page, the /_cache report
// and the favicon. The admin listener serves health, readiness and the build
// ledger. Errors are written through the foundation/errors HTTP adapter.
package handlers
