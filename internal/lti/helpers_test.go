package lti

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

var (
	keysOnce    sync.Once
	platformKey *rsa.PrivateKey
	toolKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
)

func keys(t *testing.T) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		for _, k := range []**rsa.PrivateKey{&platformKey, &toolKey, &otherKey} {
			*k, err = rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
		}
	})
}

func pemOf(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

func testDeployment(t *testing.T) *deployment.ToolDeployment {
	t.Helper()
	keys(t)
	return &deployment.ToolDeployment{
		ID:                         "0b7f3a4e-4a7d-4c55-9a43-6f1f5c0f2e11",
		DeploymentID:               "dep-1",
		ClientID:                   "client-1",
		Issuer:                     "https://lms.example",
		OIDCAuthenticationEndpoint: "https://lms.example/auth",
		JWKSEndpoint:               "https://lms.example/jwks",
		PrivateKey:                 pemOf(toolKey),
		SignatureAlgorithm:         "RS256",
	}
}

// messageFromJSON decodes doc the way an id_token payload is decoded.
func messageFromJSON(t *testing.T, doc string) Message {
	t.Helper()
	var m Message
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	return m
}
