package replay

import (
	"context"
	"database/sql"
	"time"
)

// SQLStore keeps consumed values in the used_nonces table so that every
// instance behind a load balancer sees the same consumption.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Use(ctx context.Context, kind, value string, ttl time.Duration) (bool, error) {
	kind, value, err := normalize(kind, value)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()

	// Expired entries may be taken over; live ones make the insert a no-op.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM used_nonces WHERE kind=$1 AND value=$2 AND expires_at <= $3`,
		kind, value, now.Unix()); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO used_nonces (kind, value, expires_at) VALUES ($1,$2,$3) ON CONFLICT (kind, value) DO NOTHING`,
		kind, value, now.Add(ttl).Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Purge removes expired entries and returns how many were deleted.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM used_nonces WHERE expires_at <= $1`, s.now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
