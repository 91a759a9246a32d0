package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-lti-tool/internal/db"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

const adminBase = "/lti/admin/tool-deployments"

type adminEnv struct {
	h   http.Handler
	pem string
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	svc := deployment.NewService(deployment.NewSQLStore(conn), nil)
	return &adminEnv{
		h: newTestRouter(&fakeLauncher{}, func(c *RouterConfig) {
			c.Deployments = svc
			c.AdminUser = "admin"
			c.AdminPassHash = string(hash)
		}),
		pem: string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})),
	}
}

func (e *adminEnv) call(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.SetBasicAuth("admin", "s3cret")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *adminEnv) input(deploymentID, clientID string) deployment.RegisterInput {
	return deployment.RegisterInput{
		DeploymentID:               deploymentID,
		ClientID:                   clientID,
		Issuer:                     "https://lms.example",
		OIDCAuthenticationEndpoint: "https://lms.example/auth",
		JWKSEndpoint:               "https://lms.example/jwks",
		PrivateKey:                 e.pem,
		SignatureAlgorithm:         "RS256",
		ApplicationKey:             "key",
		ApplicationSecret:          "secret",
	}
}

func TestAdmin_RequiresCredentials(t *testing.T) {
	e := newAdminEnv(t)

	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, adminBase+"/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, adminBase+"/", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_RegisterGetDelete(t *testing.T) {
	e := newAdminEnv(t)

	rec := e.call(t, http.MethodPost, adminBase+"/", e.input("dep-1", "client-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)
	assert.Equal(t, adminBase+"/"+id, rec.Header().Get("Location"))
	assert.NotContains(t, created, "privateKey")
	assert.NotContains(t, created, "applicationSecret")

	rec = e.call(t, http.MethodGet, adminBase+"/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deploymentId":"dep-1"`)

	rec = e.call(t, http.MethodDelete, adminBase+"/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.call(t, http.MethodGet, adminBase+"/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_RegisterConflictAndValidation(t *testing.T) {
	e := newAdminEnv(t)
	require.Equal(t, http.StatusCreated, e.call(t, http.MethodPost, adminBase+"/", e.input("dep-1", "client-1")).Code)

	rec := e.call(t, http.MethodPost, adminBase+"/", e.input("dep-1", "client-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := e.input("dep-2", "client-1")
	bad.JWKSEndpoint = "not-a-url"
	rec = e.call(t, http.MethodPost, adminBase+"/", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "jwksEndpoint must be an absolute URL")
}

func TestAdmin_ListFilters(t *testing.T) {
	e := newAdminEnv(t)
	for _, in := range []deployment.RegisterInput{
		e.input("dep-1", "client-1"),
		e.input("dep-2", "client-2"),
		e.input("dep-3", "client-2"),
	} {
		require.Equal(t, http.StatusCreated, e.call(t, http.MethodPost, adminBase+"/", in).Code)
	}

	count := func(query string) int {
		rec := e.call(t, http.MethodGet, adminBase+"/"+query, nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		var list []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		return len(list)
	}
	assert.Equal(t, 3, count(""))
	assert.Equal(t, 3, count("?issuer=https://lms.example"))
	assert.Equal(t, 2, count("?issuer=https://lms.example&clientId=client-2"))
	assert.Equal(t, 1, count("?issuer=https://lms.example&clientId=client-2&deploymentId=dep-3"))
	assert.Equal(t, 0, count("?issuer=https://lms.example&clientId=client-2&deploymentId=dep-9"))
	assert.Equal(t, 0, count("?issuer=https://other.example"))

	assert.Equal(t, http.StatusBadRequest, e.call(t, http.MethodGet, adminBase+"/?clientId=client-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.call(t, http.MethodGet, adminBase+"/?issuer=x&deploymentId=dep-1", nil).Code)
}

func TestToolJWKSEndpoint(t *testing.T) {
	e := newAdminEnv(t)
	require.Equal(t, http.StatusCreated, e.call(t, http.MethodPost, adminBase+"/", e.input("dep-1", "client-1")).Code)

	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
}
