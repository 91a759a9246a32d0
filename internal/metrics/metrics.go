// Package metrics records launch protocol metrics.
package metrics

import "time"

// Status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder receives protocol events. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveOperation(operation, status string, d time.Duration)
	IncJWKSFetch(status string)
	IncScorePublication(status string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveOperation(string, string, time.Duration) {}
func (Nop) IncJWKSFetch(string)                            {}
func (Nop) IncScorePublication(string)                     {}

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
