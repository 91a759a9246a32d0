package taking

import (
	"context"
	"time"
)

// ExamTaking records the first launch of an exam by a learner. It is only used later
// to find the line item and tool deployment needed to publish the learner's score.
// Unique per (ExamID, Subject).
type ExamTaking struct {
	ID               string    `json:"id"`
	ExamID           int64     `json:"examId"`
	Subject          string    `json:"subject"`
	LineItemURL      string    `json:"lineItemUrl"`
	MaxScore         int       `json:"maxScore"`
	ToolDeploymentID string    `json:"toolDeploymentId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Store must keep at most one record per (examID, subject), even under concurrent creates.
type Store interface {
	Exists(ctx context.Context, examID int64, subject string) (bool, error)
	// Create is a no-op when a record for (examID, subject) already exists.
	Create(ctx context.Context, et ExamTaking) error
	// Get returns nil when absent.
	Get(ctx context.Context, examID int64, subject string) (*ExamTaking, error)
}
