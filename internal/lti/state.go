// internal/lti/state.go
package lti

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

/*
Opaque state carried across the launch redirects. Every state shape goes through the
same pair of generic functions; a shape only supplies how it maps to and from claims:

	token, err := EncodeState(codec, launchStateClaims, LaunchState{...})
	st, err := DecodeState(codec, launchStateFromClaims, token)

State tokens are signed with a tool-wide RSA key pair (never a tenant key) and carry
no expiration. Replay is bounded by single-use nonces instead.
*/

const (
	stateClaimToolDeploymentID = "tool_deployment_id"
	stateClaimNonce            = "nonce"
	stateClaimReturnURL        = "return_url"
	stateClaimData             = "data"
)

// StateCodec signs and verifies state tokens.
type StateCodec struct {
	method  jwt.SigningMethod
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	now     func() time.Time
}

// NewStateCodec builds an RS512 codec around the given key pair.
func NewStateCodec(key *rsa.PrivateKey) *StateCodec {
	return &StateCodec{
		method:  jwt.SigningMethodRS512,
		private: key,
		public:  &key.PublicKey,
		now:     time.Now,
	}
}

// EncodeState signs the claims derived from payload.
func EncodeState[T any](c *StateCodec, toClaims func(T) jwt.MapClaims, payload T) (string, error) {
	claims := toClaims(payload)
	claims[ClaimIssuedAt] = c.now().Unix()
	return jwt.NewWithClaims(c.method, claims).SignedString(c.private)
}

// DecodeState verifies token and rebuilds the payload from its claims.
// Signature and format problems are AuthenticationErrors; missing claims are MalformedStateErrors.
func DecodeState[T any](c *StateCodec, fromClaims func(jwt.MapClaims) (T, error), token string) (T, error) {
	var zero T
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.public, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
	)
	if err != nil {
		return zero, authFailure("invalid state", err)
	}
	return fromClaims(claims)
}

/* ------------------------------ launch state ------------------------------ */

// LaunchState is produced at login initiation and echoed back with the id_token.
type LaunchState struct {
	ToolDeploymentID uuid.UUID
	Nonce            string
}

func launchStateClaims(s LaunchState) jwt.MapClaims {
	return jwt.MapClaims{
		stateClaimToolDeploymentID: s.ToolDeploymentID.String(),
		stateClaimNonce:            s.Nonce,
	}
}

func launchStateFromClaims(claims jwt.MapClaims) (LaunchState, error) {
	id, err := uuidClaim(claims, stateClaimToolDeploymentID)
	if err != nil {
		return LaunchState{}, err
	}
	nonce, err := stringClaim(claims, stateClaimNonce)
	if err != nil {
		return LaunchState{}, err
	}
	return LaunchState{ToolDeploymentID: id, Nonce: nonce}, nil
}

func (c *StateCodec) EncodeLaunch(s LaunchState) (string, error) {
	return EncodeState(c, launchStateClaims, s)
}

func (c *StateCodec) DecodeLaunch(token string) (LaunchState, error) {
	return DecodeState(c, launchStateFromClaims, token)
}

/* ----------------------------- selection state ---------------------------- */

// SelectionState is produced when a deep-linking request is accepted and consumed
// when the user confirms an exam.
type SelectionState struct {
	ReturnURL        string
	Data             string // opaque platform data, echoed back verbatim; may be empty
	ToolDeploymentID uuid.UUID
	Nonce            string
}

func selectionStateClaims(s SelectionState) jwt.MapClaims {
	claims := jwt.MapClaims{
		stateClaimReturnURL:        s.ReturnURL,
		stateClaimToolDeploymentID: s.ToolDeploymentID.String(),
		stateClaimNonce:            s.Nonce,
	}
	if s.Data != "" {
		claims[stateClaimData] = s.Data
	}
	return claims
}

func selectionStateFromClaims(claims jwt.MapClaims) (SelectionState, error) {
	returnURL, err := stringClaim(claims, stateClaimReturnURL)
	if err != nil {
		return SelectionState{}, err
	}
	id, err := uuidClaim(claims, stateClaimToolDeploymentID)
	if err != nil {
		return SelectionState{}, err
	}
	nonce, err := stringClaim(claims, stateClaimNonce)
	if err != nil {
		return SelectionState{}, err
	}
	var data string
	if v, ok := claims[stateClaimData]; ok {
		s, ok := v.(string)
		if !ok {
			return SelectionState{}, authFailure("state claim "+stateClaimData+" is not a string", nil)
		}
		data = s
	}
	return SelectionState{ReturnURL: returnURL, Data: data, ToolDeploymentID: id, Nonce: nonce}, nil
}

func (c *StateCodec) EncodeSelection(s SelectionState) (string, error) {
	return EncodeState(c, selectionStateClaims, s)
}

func (c *StateCodec) DecodeSelection(token string) (SelectionState, error) {
	return DecodeState(c, selectionStateFromClaims, token)
}

/* --------------------------------- claims --------------------------------- */

func stringClaim(claims jwt.MapClaims, name string) (string, error) {
	v, ok := claims[name]
	if !ok || v == nil {
		return "", &MalformedStateError{Msg: "missing claim " + name}
	}
	s, ok := v.(string)
	if !ok {
		return "", authFailure("state claim "+name+" is not a string", nil)
	}
	return s, nil
}

func uuidClaim(claims jwt.MapClaims, name string) (uuid.UUID, error) {
	s, err := stringClaim(claims, name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, authFailure("state claim "+name+" is not a UUID", nil)
	}
	return id, nil
}
