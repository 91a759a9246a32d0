// internal/lti/oauth2.go
package lti

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// ClientAssertionType is the OAuth2 client assertion type for signed JWTs.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// DefaultAssertionTTL is the lifetime of client assertions when none is configured.
const DefaultAssertionTTL = 5 * time.Minute

// AccessToken is a platform-issued bearer token for LTI services.
type AccessToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	Scopes      []string
}

// TokenSource obtains service access tokens from a platform using the
// client-credentials grant authenticated by a signed client assertion.
type TokenSource struct {
	HTTP         *http.Client
	AssertionTTL time.Duration
	now          func() time.Time
}

func NewTokenSource(hc *http.Client, assertionTTL time.Duration) *TokenSource {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if assertionTTL <= 0 {
		assertionTTL = DefaultAssertionTTL
	}
	return &TokenSource{HTTP: hc, AssertionTTL: assertionTTL, now: time.Now}
}

// AccessToken requests a token for scopes from the deployment's OIDC endpoint.
// Failures are ExternalServiceErrors naming the platform issuer.
func (s *TokenSource) AccessToken(ctx context.Context, td *deployment.ToolDeployment, scopes ...string) (AccessToken, error) {
	assertion, err := s.clientAssertion(td)
	if err != nil {
		return AccessToken{}, &ExternalServiceError{Party: td.Issuer, Msg: "sign client assertion", Err: err}
	}
	cc := clientcredentials.Config{
		ClientID:  td.ClientID,
		TokenURL:  td.OIDCAuthenticationEndpoint,
		Scopes:    scopes,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: map[string][]string{
			"client_assertion_type": {ClientAssertionType},
			"client_assertion":      {assertion},
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTP)
	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return AccessToken{}, &ExternalServiceError{Party: td.Issuer, Msg: "token endpoint returned " + re.Response.Status}
		}
		return AccessToken{}, &ExternalServiceError{Party: td.Issuer, Msg: "fetch access token", Err: err}
	}
	out := AccessToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(tok.Expiry.Sub(s.now()).Round(time.Second) / time.Second)
	}
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		out.Scopes = strings.Fields(granted)
	}
	return out, nil
}

func (s *TokenSource) clientAssertion(td *deployment.ToolDeployment) (string, error) {
	method, key, err := td.Signer()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.MapClaims{
		ClaimIssuer:     td.ClientID,
		ClaimSubject:    td.ClientID,
		ClaimAudience:   td.Issuer,
		ClaimIssuedAt:   now.Unix(),
		ClaimExpiration: now.Add(s.AssertionTTL).Unix(),
		ClaimJWTID:      uuid.NewString(),
	}
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = td.ID
	return tok.SignedString(key)
}
