// internal/lti/errors.go
package lti

import "fmt"

/*
Error taxonomy for the launch protocol. Callers classify with errors.As:

	var authErr *lti.AuthenticationError
	if errors.As(err, &authErr) { ... }

Messages are safe to show to callers: they never carry key material or raw tokens.
*/

// AuthenticationError reports a signature or claim verification failure.
type AuthenticationError struct {
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string { return wrapMsg("authentication failed", e.Msg, e.Err) }
func (e *AuthenticationError) Unwrap() error { return e.Err }

// MalformedStateError reports a correctly signed state token that lacks a required claim.
type MalformedStateError struct {
	Msg string
}

func (e *MalformedStateError) Error() string { return "malformed state: " + e.Msg }

// BadLtiRequestError reports a malformed or semantically invalid inbound LTI message.
type BadLtiRequestError struct {
	Msg string
}

func (e *BadLtiRequestError) Error() string { return e.Msg }

// KeyResolutionError reports that a verification key could not be obtained or matched.
type KeyResolutionError struct {
	Msg string
	Err error
}

func (e *KeyResolutionError) Error() string { return wrapMsg("key resolution failed", e.Msg, e.Err) }
func (e *KeyResolutionError) Unwrap() error { return e.Err }

// NotFoundError reports that no tenant or record matched a lookup.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Msg }

// IllegalStateError reports an internal consistency violation, e.g. a state token
// pointing at a tool deployment that no longer exists.
type IllegalStateError struct {
	Msg string
	Err error
}

func (e *IllegalStateError) Error() string { return wrapMsg("illegal state", e.Msg, e.Err) }
func (e *IllegalStateError) Unwrap() error { return e.Err }

// ExternalServiceError reports a failed call to a platform or sibling service.
// Party identifies the remote side (a platform issuer or a service name).
type ExternalServiceError struct {
	Party string
	Msg   string
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return wrapMsg(fmt.Sprintf("external service %q", e.Party), e.Msg, e.Err)
}
func (e *ExternalServiceError) Unwrap() error { return e.Err }

func wrapMsg(prefix, msg string, err error) string {
	s := prefix
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}

func authFailure(msg string, err error) error { return &AuthenticationError{Msg: msg, Err: err} }
func badRequest(msg string) error             { return &BadLtiRequestError{Msg: msg} }
