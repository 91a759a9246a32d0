package deployment

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const selectColumns = `SELECT id, deployment_id, client_id, issuer, oidc_auth_endpoint, jwks_endpoint,
	private_key, signature_algorithm, application_key, application_secret, created_at
	FROM tool_deployments`

// Rows are returned in registration order, which defines "first found" for launches.
const orderBy = ` ORDER BY seq`

func (s *SQLStore) FindByID(ctx context.Context, id string) (*ToolDeployment, error) {
	return s.one(ctx, selectColumns+` WHERE id=$1`, id)
}

func (s *SQLStore) FindByIssuer(ctx context.Context, issuer string) ([]ToolDeployment, error) {
	return s.many(ctx, selectColumns+` WHERE issuer=$1`+orderBy, issuer)
}

func (s *SQLStore) FindByClientIDIssuer(ctx context.Context, clientID, issuer string) ([]ToolDeployment, error) {
	return s.many(ctx, selectColumns+` WHERE client_id=$1 AND issuer=$2`+orderBy, clientID, issuer)
}

func (s *SQLStore) FindByDeploymentClientIssuer(ctx context.Context, deploymentID, clientID, issuer string) (*ToolDeployment, error) {
	return s.one(ctx, selectColumns+` WHERE deployment_id=$1 AND client_id=$2 AND issuer=$3`, deploymentID, clientID, issuer)
}

func (s *SQLStore) List(ctx context.Context) ([]ToolDeployment, error) {
	return s.many(ctx, selectColumns+orderBy)
}

func (s *SQLStore) Create(ctx context.Context, td ToolDeployment) error {
	if td.CreatedAt.IsZero() {
		td.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO tool_deployments
		(id, deployment_id, client_id, issuer, oidc_auth_endpoint, jwks_endpoint,
		 private_key, signature_algorithm, application_key, application_secret, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT DO NOTHING`,
		td.ID, td.DeploymentID, td.ClientID, td.Issuer, td.OIDCAuthenticationEndpoint, td.JWKSEndpoint,
		td.PrivateKey, td.SignatureAlgorithm, td.ApplicationKey, td.ApplicationSecret, td.CreatedAt.Unix())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_deployments WHERE id=$1`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(sc scanner) (ToolDeployment, error) {
	var td ToolDeployment
	var created int64
	err := sc.Scan(&td.ID, &td.DeploymentID, &td.ClientID, &td.Issuer, &td.OIDCAuthenticationEndpoint,
		&td.JWKSEndpoint, &td.PrivateKey, &td.SignatureAlgorithm, &td.ApplicationKey, &td.ApplicationSecret, &created)
	if err != nil {
		return ToolDeployment{}, err
	}
	td.CreatedAt = time.Unix(created, 0).UTC()
	return td, nil
}

func (s *SQLStore) one(ctx context.Context, q string, args ...any) (*ToolDeployment, error) {
	td, err := scanDeployment(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &td, nil
}

func (s *SQLStore) many(ctx context.Context, q string, args ...any) ([]ToolDeployment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ToolDeployment{}
	for rows.Next() {
		td, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, td)
	}
	return out, rows.Err()
}
