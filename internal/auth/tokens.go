package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
)

// TokensServiceName identifies the token-issuing service in ExternalServiceErrors.
const TokensServiceName = "tokens-service"

// Role is a platform role granted to an issued token.
type Role string

// RoleStudent is the only role launches request.
const RoleStudent Role = "STUDENT"

// TokenData is an access/refresh token pair issued for a learner.
type TokenData struct {
	ID           string `json:"id"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer obtains tokens for a subject. No token is (nil, nil).
type Issuer interface {
	TokenFor(ctx context.Context, subject string, roles []Role) (*TokenData, error)
}

// TokensClient calls the users service to issue tokens.
type TokensClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewTokensClient(baseURL string, hc *http.Client) *TokensClient {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokensClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

type tokenRequest struct {
	Subject string `json:"subject"`
	Roles   []Role `json:"roles"`
}

// TokenFor calls POST {base}/internal/tokens.
func (c *TokensClient) TokenFor(ctx context.Context, subject string, roles []Role) (*TokenData, error) {
	body, err := json.Marshal(tokenRequest{Subject: subject, Roles: roles})
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/internal/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: "issue token", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: fmt.Sprintf("issue token: %s", resp.Status)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: "read response", Err: err}
	}
	if t := bytes.TrimSpace(raw); len(t) == 0 || string(t) == "null" {
		return nil, nil
	}
	var td TokenData
	if err := json.Unmarshal(raw, &td); err != nil {
		return nil, &lti.ExternalServiceError{Party: TokensServiceName, Msg: "decode response", Err: err}
	}
	return &td, nil
}
