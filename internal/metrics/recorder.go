// Package metrics exposes observability hooks for scanning and publishing.
package metrics

import "time"

// Result labels for transition counters.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Recorder receives scan and publish observations. Implementations may forward
// to Prometheus or discard them.
type Recorder interface {
	ObserveScan(d time.Duration, documents int)
	ObserveStepDuration(op, step string, d time.Duration)
	IncTransition(op, result string)
	IncGitCommand(subcommand string, success bool)
}

// NoopRecorder discards everything. It is the default when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) ObserveScan(time.Duration, int)                    {}
func (NoopRecorder) ObserveStepDuration(string, string, time.Duration) {}
func (NoopRecorder) IncTransition(string, string)                      {}
func (NoopRecorder) IncGitCommand(string, bool)                        {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
