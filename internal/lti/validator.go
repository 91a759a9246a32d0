// internal/lti/validator.go
package lti

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// platformAlgs are the id_token algorithms accepted from platforms.
var platformAlgs = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}

// Validator verifies platform-issued id_tokens.
type Validator struct {
	Keys   KeyResolver
	Leeway time.Duration
	now    func() time.Time
}

func NewValidator(keys KeyResolver) *Validator {
	return &Validator{Keys: keys, Leeway: 30 * time.Second, now: time.Now}
}

// Validate verifies the signature and structure of idToken, then checks, in order:
// version, issuer, audience/azp, deployment id, and nonce. The first mismatch fails.
func (v *Validator) Validate(ctx context.Context, idToken string, td *deployment.ToolDeployment, expectedNonce string) (Message, error) {
	claims := jwt.MapClaims{}
	var keyErr error
	_, err := jwt.ParseWithClaims(idToken, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			key, err := v.Keys.ResolveKey(ctx, td, kid)
			if err != nil {
				keyErr = err
				return nil, err
			}
			return key, nil
		},
		jwt.WithValidMethods(platformAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if keyErr != nil {
			var kre *KeyResolutionError
			if errors.As(keyErr, &kre) {
				return nil, authFailure("cannot resolve verification key", kre)
			}
		}
		return nil, authFailure("invalid id_token", err)
	}
	msg := Message(claims)
	if err := validateClaims(msg, td, expectedNonce); err != nil {
		return nil, err
	}
	return msg, nil
}

func validateClaims(msg Message, td *deployment.ToolDeployment, expectedNonce string) error {
	if version, _ := msg.String(ClaimVersion); version != Version {
		return authFailure("unsupported LTI version", nil)
	}
	if iss, _ := msg.String(ClaimIssuer); iss != td.Issuer {
		return authFailure("issuer mismatch", nil)
	}
	if err := validateAudience(msg, td.ClientID); err != nil {
		return err
	}
	if dep, _ := msg.String(ClaimDeploymentID); dep != td.DeploymentID {
		return authFailure("deployment id mismatch", nil)
	}
	if nonce, _ := msg.String(ClaimNonce); nonce != expectedNonce {
		return authFailure("nonce mismatch", nil)
	}
	return nil
}

// validateAudience requires clientID in aud; a multi-valued aud also requires azp == clientID.
func validateAudience(msg Message, clientID string) error {
	switch aud := msg[ClaimAudience].(type) {
	case string:
		if aud != clientID {
			return authFailure("audience mismatch", nil)
		}
		return nil
	case []any:
		list, ok := asStringSlice(aud)
		if !ok || !contains(list, clientID) {
			return authFailure("audience mismatch", nil)
		}
		if len(list) > 1 {
			if azp, _ := msg.String(ClaimAuthorizedParty); azp != clientID {
				return authFailure("authorized party mismatch", nil)
			}
		}
		return nil
	default:
		return authFailure("missing audience", nil)
	}
}
