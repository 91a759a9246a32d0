package exam

import "time"

// State is the lifecycle state of an exam in the evaluations service.
type State string

const (
	StateUpcoming   State = "UPCOMING"
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
)

// Exam is the evaluations-service view of an exam. Duration is in minutes.
type Exam struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	StartingAt  time.Time `json:"startingAt"`
	Duration    int64     `json:"duration"`
	State       State     `json:"state"`
	MaxScore    int       `json:"maxScore"`
}

// Upcoming reports whether the exam can still be linked into a course.
func (e *Exam) Upcoming() bool { return e.State == StateUpcoming }
