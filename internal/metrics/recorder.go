// Package metrics defines observability hooks for the build engine.
package metrics

import "time"

// JobResult enumerates per-job outcome categories for counters.
type JobResult string

const (
	JobResultBuilt    JobResult = "built"
	JobResultCacheHit JobResult = "cache_hit"
	JobResultFailed   JobResult = "failed"
	JobResultStale    JobResult = "stale"
)

// Recorder defines observability hooks for generation and job metrics.
// Implementations may forward to Prometheus. The NoopRecorder allows
// optional injection.
type Recorder interface {
	ObserveGenerationDuration(d time.Duration)
	ObserveJobDuration(d time.Duration)
	IncJobResult(result JobResult)
	IncGenerationOutcome(outcome string) // outcome: completed|failed
	SetCacheBytes(n int64)
	SetCacheEntries(n int)
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcasts()
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveGenerationDuration(time.Duration) {}
func (NoopRecorder) ObserveJobDuration(time.Duration)        {}
func (NoopRecorder) IncJobResult(JobResult)                  {}
func (NoopRecorder) IncGenerationOutcome(string)             {}
func (NoopRecorder) SetCacheBytes(int64)                     {}
func (NoopRecorder) SetCacheEntries(int)                     {}
func (NoopRecorder) SetLiveReloadClients(int)                {}
func (NoopRecorder) IncLiveReloadBroadcasts()                {}
