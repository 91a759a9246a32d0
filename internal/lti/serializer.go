// internal/lti/serializer.go
package lti

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// Sign serializes msg as a compact JWS using the deployment's private key and algorithm.
// iat and exp given as time.Time are written as epoch seconds. The kid header is the
// deployment id, matching the tool key set.
func Sign(msg Message, td *deployment.ToolDeployment) (string, error) {
	method, key, err := td.Signer()
	if err != nil {
		return "", fmt.Errorf("lti: signing key for deployment %s: %w", td.ID, err)
	}
	claims := make(jwt.MapClaims, len(msg))
	for k, v := range msg {
		claims[k] = v
	}
	for _, k := range []string{ClaimIssuedAt, ClaimExpiration} {
		if t, ok := claims[k].(time.Time); ok {
			claims[k] = t.Unix()
		}
	}
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = td.ID
	return tok.SignedString(key)
}
