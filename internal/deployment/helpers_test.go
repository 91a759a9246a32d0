package deployment

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti-tool/internal/db"
)

var (
	pemOnce sync.Once
	testPEM string
)

func privateKeyPEM(t *testing.T) string {
	t.Helper()
	pemOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testPEM = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
	})
	return testPEM
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func validInput(t *testing.T) RegisterInput {
	return RegisterInput{
		DeploymentID:               "dep-1",
		ClientID:                   "client-1",
		Issuer:                     "https://lms.example",
		OIDCAuthenticationEndpoint: "https://lms.example/auth",
		JWKSEndpoint:               "https://lms.example/jwks",
		PrivateKey:                 privateKeyPEM(t),
		SignatureAlgorithm:         "RS256",
		ApplicationKey:             "app-key",
		ApplicationSecret:          "app-secret",
	}
}
