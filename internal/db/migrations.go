package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ensureSchema applies idempotent DDL for tool deployments, exam takings, and used nonces.
func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	// Some drivers reject multi-statement scripts; fall back to one statement at a time.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range splitSQL(schema) {
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("db: schema failed at:\n%s\nerr: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS tool_deployments (
  seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
  id                  TEXT NOT NULL UNIQUE,
  deployment_id       TEXT NOT NULL,
  client_id           TEXT NOT NULL,
  issuer              TEXT NOT NULL,
  oidc_auth_endpoint  TEXT NOT NULL,
  jwks_endpoint       TEXT NOT NULL,
  private_key         TEXT NOT NULL,
  signature_algorithm TEXT NOT NULL,
  application_key     TEXT NOT NULL DEFAULT '',
  application_secret  TEXT NOT NULL DEFAULT '',
  created_at          INTEGER NOT NULL,
  UNIQUE (deployment_id, client_id, issuer)
);

CREATE INDEX IF NOT EXISTS tool_deployments_issuer_idx
  ON tool_deployments (issuer, client_id);

CREATE TABLE IF NOT EXISTS exam_takings (
  id                  TEXT PRIMARY KEY,
  exam_id             INTEGER NOT NULL,
  subject             TEXT NOT NULL,
  line_item_url       TEXT NOT NULL,
  max_score           INTEGER NOT NULL,
  tool_deployment_id  TEXT NOT NULL REFERENCES tool_deployments(id) ON DELETE CASCADE,
  created_at          INTEGER NOT NULL,
  UNIQUE (exam_id, subject)
);

CREATE TABLE IF NOT EXISTS used_nonces (
  kind                TEXT NOT NULL,
  value               TEXT NOT NULL,
  expires_at          INTEGER NOT NULL,
  PRIMARY KEY (kind, value)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS tool_deployments (
  seq                 BIGSERIAL PRIMARY KEY,
  id                  TEXT NOT NULL UNIQUE,
  deployment_id       TEXT NOT NULL,
  client_id           TEXT NOT NULL,
  issuer              TEXT NOT NULL,
  oidc_auth_endpoint  TEXT NOT NULL,
  jwks_endpoint       TEXT NOT NULL,
  private_key         TEXT NOT NULL,
  signature_algorithm TEXT NOT NULL,
  application_key     TEXT NOT NULL DEFAULT '',
  application_secret  TEXT NOT NULL DEFAULT '',
  created_at          BIGINT NOT NULL,
  UNIQUE (deployment_id, client_id, issuer)
);

CREATE INDEX IF NOT EXISTS tool_deployments_issuer_idx
  ON tool_deployments (issuer, client_id);

CREATE TABLE IF NOT EXISTS exam_takings (
  id                  TEXT PRIMARY KEY,
  exam_id             BIGINT NOT NULL,
  subject             TEXT NOT NULL,
  line_item_url       TEXT NOT NULL,
  max_score           INTEGER NOT NULL,
  tool_deployment_id  TEXT NOT NULL REFERENCES tool_deployments(id) ON DELETE CASCADE,
  created_at          BIGINT NOT NULL,
  UNIQUE (exam_id, subject)
);

CREATE TABLE IF NOT EXISTS used_nonces (
  kind                TEXT NOT NULL,
  value               TEXT NOT NULL,
  expires_at          BIGINT NOT NULL,
  PRIMARY KEY (kind, value)
);
`

// splitSQL naively splits on ';' boundaries; fine for plain DDL.
func splitSQL(s string) []string {
	raw := strings.Split(s, ";")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part+";")
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
