package deployment

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ToolDeployment is one registered integration between an LMS platform and this tool.
// The (DeploymentID, ClientID, Issuer) triple is unique.
type ToolDeployment struct {
	ID                         string    `json:"id"`
	DeploymentID               string    `json:"deploymentId"`
	ClientID                   string    `json:"clientId"`
	Issuer                     string    `json:"issuer"`
	OIDCAuthenticationEndpoint string    `json:"oidcAuthenticationEndpoint"`
	JWKSEndpoint               string    `json:"jwksEndpoint"`
	PrivateKey                 string    `json:"-"` // PEM, RSA (PKCS#1 or PKCS#8)
	SignatureAlgorithm         string    `json:"signatureAlgorithm"`
	ApplicationKey             string    `json:"applicationKey,omitempty"`
	ApplicationSecret          string    `json:"-"`
	CreatedAt                  time.Time `json:"createdAt"`
}

// Directory is the read side used by the launch flow. Lookups never fail for
// "not found": single results are nil and lists are empty.
type Directory interface {
	FindByID(ctx context.Context, id string) (*ToolDeployment, error)
	FindByIssuer(ctx context.Context, issuer string) ([]ToolDeployment, error)
	FindByClientIDIssuer(ctx context.Context, clientID, issuer string) ([]ToolDeployment, error)
	FindByDeploymentClientIssuer(ctx context.Context, deploymentID, clientID, issuer string) (*ToolDeployment, error)
}

// Store adds the write side used by administration.
type Store interface {
	Directory
	List(ctx context.Context) ([]ToolDeployment, error)
	// Create returns ErrAlreadyExists when the triple is taken.
	Create(ctx context.Context, td ToolDeployment) error
	Delete(ctx context.Context, id string) error
}

// ErrAlreadyExists is returned when the (deployment id, client id, issuer) triple is already registered.
var ErrAlreadyExists = errors.New("deployment: tool deployment already exists")

var signingMethods = map[string]jwt.SigningMethod{
	"RS256": jwt.SigningMethodRS256,
	"RS384": jwt.SigningMethodRS384,
	"RS512": jwt.SigningMethodRS512,
	"PS256": jwt.SigningMethodPS256,
	"PS384": jwt.SigningMethodPS384,
	"PS512": jwt.SigningMethodPS512,
}

// SigningMethod maps an algorithm name (RS256, PS384, ...) to its JWS signing method.
func SigningMethod(alg string) (jwt.SigningMethod, error) {
	m, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("deployment: unsupported signature algorithm %q", alg)
	}
	return m, nil
}

// ParsePrivateKey parses an RSA private key in PEM form.
func ParsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	k, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("deployment: invalid private key: %w", err)
	}
	return k, nil
}

// Signer returns the method and key this tool uses to sign messages for the deployment.
func (td *ToolDeployment) Signer() (jwt.SigningMethod, *rsa.PrivateKey, error) {
	m, err := SigningMethod(td.SignatureAlgorithm)
	if err != nil {
		return nil, nil, err
	}
	k, err := ParsePrivateKey(td.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	return m, k, nil
}
