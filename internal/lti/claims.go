// internal/lti/claims.go
package lti

import "strconv"

// Version is the only LTI version this tool speaks.
const Version = "1.3.0"

// Message types.
const (
	MessageTypeResourceLink        = "LtiResourceLinkRequest"
	MessageTypeDeepLinkingRequest  = "LtiDeepLinkingRequest"
	MessageTypeDeepLinkingResponse = "LTIDeepLinkingResponse"
)

// Registered JWT claims used by LTI messages.
const (
	ClaimIssuer          = "iss"
	ClaimSubject         = "sub"
	ClaimAudience        = "aud"
	ClaimAuthorizedParty = "azp"
	ClaimNonce           = "nonce"
	ClaimIssuedAt        = "iat"
	ClaimExpiration      = "exp"
	ClaimJWTID           = "jti"
)

// LTI claims (https://www.imsglobal.org/spec/lti/v1p3).
const (
	ClaimMessageType        = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion            = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID       = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimTargetLinkURI      = "https://purl.imsglobal.org/spec/lti/claim/target_link_uri"
	ClaimResourceLink       = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ClaimRoles              = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimCustom             = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ClaimLaunchPresentation = "https://purl.imsglobal.org/spec/lti/claim/launch_presentation"

	ClaimAGSEndpoint = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"

	ClaimDeepLinkingSettings = "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"
	ClaimContentItems        = "https://purl.imsglobal.org/spec/lti-dl/claim/content_items"
	ClaimDeepLinkingData     = "https://purl.imsglobal.org/spec/lti-dl/claim/data"
)

// Message is the decoded claim set of an LTI message. It lives for one request only.
type Message map[string]any

// String returns the claim as a string; ok is false when absent or not a string.
func (m Message) String(claim string) (string, bool) {
	s, ok := m[claim].(string)
	return s, ok
}

// Object returns the claim as a JSON object.
func (m Message) Object(claim string) (map[string]any, bool) {
	return asObject(m[claim])
}

// Has reports whether the claim is present (even if null).
func (m Message) Has(claim string) bool {
	_, ok := m[claim]
	return ok
}

// MessageType is a shorthand for the message_type claim.
func (m Message) MessageType() string {
	s, _ := m.String(ClaimMessageType)
	return s
}

// CustomProperty returns a string custom parameter from the custom claim.
func (m Message) CustomProperty(name string) (string, bool) {
	custom, ok := m.Object(ClaimCustom)
	if !ok {
		return "", false
	}
	s, ok := custom[name].(string)
	return s, ok
}

// LaunchPresentation returns a string property of the launch_presentation claim.
func (m Message) LaunchPresentation(name string) (string, bool) {
	lp, ok := m.Object(ClaimLaunchPresentation)
	if !ok {
		return "", false
	}
	s, ok := lp[name].(string)
	return s, ok
}

/* --------------------------------- helpers -------------------------------- */

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Message:
		return t, true
	default:
		return nil, false
	}
}

// asStringSlice accepts []string or a JSON array made only of strings.
func asStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	default:
		return false, false
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
