package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    Driver
		wantErr bool
	}{
		{"", DriverSQLite, false},
		{"sqlite3", DriverSQLite, false},
		{"pgx", DriverPostgres, false},
		{"postgres", DriverPostgres, false},
		{"mysql", "", true},
	}
	for _, tc := range tests {
		got, err := ParseDriver(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestOpen_SQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	dsn := memoryDSN()
	db, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"tool_deployments", "exam_takings", "used_nonces"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	// the schema is idempotent: a second open against the same database succeeds
	again, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	_ = again.Close()
}

func TestOpen_SQLiteEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, memoryDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `INSERT INTO exam_takings
		(id, exam_id, subject, line_item_url, max_score, tool_deployment_id, created_at)
		VALUES ('t1', 1, 's', 'u', 10, 'missing', 0)`)
	assert.Error(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("oracle"), "")
	assert.Error(t, err)
}

func TestSplitSQL(t *testing.T) {
	got := splitSQL("CREATE TABLE a (x INT);\n\n CREATE INDEX i ON a (x) ;  ")
	assert.Equal(t, []string{"CREATE TABLE a (x INT);", "CREATE INDEX i ON a (x);"}, got)
}

