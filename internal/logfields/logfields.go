package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID     = "build_id"
	KeyBuildHash   = "build_hash"
	KeyBundle      = "bundle"
	KeyPackage     = "package"
	KeyVersion     = "version"
	KeySpec        = "spec"
	KeyStage       = "stage"
	KeyOutcome     = "outcome"
	KeyDurationMS  = "duration_ms"
	KeySize        = "size"
	KeyWorker      = "worker"
	KeyPath        = "path"
	KeyMethod      = "method"
	KeyStatus      = "status"
	KeyUserAgent   = "user_agent"
	KeyRemoteAddr  = "remote_addr"
	KeyURL         = "url"
	KeyAttempt     = "attempt"
	KeyScheduleJob = "schedule_job"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr       { return slog.String(KeyBuildID, id) }
func BuildHash(h string) slog.Attr      { return slog.String(KeyBuildHash, h) }
func Bundle(name string) slog.Attr      { return slog.String(KeyBundle, name) }
func Package(name string) slog.Attr     { return slog.String(KeyPackage, name) }
func Version(v string) slog.Attr        { return slog.String(KeyVersion, v) }
func Spec(s string) slog.Attr           { return slog.String(KeySpec, s) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Size(n int) slog.Attr              { return slog.Int(KeySize, n) }
func Worker(pid int) slog.Attr          { return slog.Int(KeyWorker, pid) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr         { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr     { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr  { return slog.String(KeyRemoteAddr, addr) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Attempt(n int) slog.Attr           { return slog.Int(KeyAttempt, n) }
func ScheduleJob(name string) slog.Attr { return slog.String(KeyScheduleJob, name) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
