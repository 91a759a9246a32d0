package taking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Exists(ctx context.Context, examID int64, subject string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM exam_takings WHERE exam_id=$1 AND subject=$2`, examID, subject).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) Create(ctx context.Context, et ExamTaking) error {
	if et.ID == "" {
		et.ID = uuid.NewString()
	}
	if et.CreatedAt.IsZero() {
		et.CreatedAt = time.Now().UTC()
	}
	// The (exam_id, subject) unique key makes racing first launches collapse into one row.
	_, err := s.db.ExecContext(ctx, `INSERT INTO exam_takings
		(id, exam_id, subject, line_item_url, max_score, tool_deployment_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (exam_id, subject) DO NOTHING`,
		et.ID, et.ExamID, et.Subject, et.LineItemURL, et.MaxScore, et.ToolDeploymentID, et.CreatedAt.Unix())
	return err
}

func (s *SQLStore) Get(ctx context.Context, examID int64, subject string) (*ExamTaking, error) {
	var et ExamTaking
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT id, exam_id, subject, line_item_url, max_score, tool_deployment_id, created_at
		FROM exam_takings WHERE exam_id=$1 AND subject=$2`, examID, subject).
		Scan(&et.ID, &et.ExamID, &et.Subject, &et.LineItemURL, &et.MaxScore, &et.ToolDeploymentID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	et.CreatedAt = time.Unix(created, 0).UTC()
	return &et, nil
}
