package pipeline

import "time"

// Turn outcomes reported to the Recorder.
const (
	OutcomeAnswered  = "answered"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

// Recorder observes pipeline activity, typically for metrics.
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveTurn(outcome string)
	ObserveDegraded(stage string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration, error) {}
func (nopRecorder) ObserveTurn(string)                        {}
func (nopRecorder) ObserveDegraded(string)                    {}
