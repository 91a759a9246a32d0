// internal/lti/oidc_login.go
package lti

import (
	"net/url"
	"strings"
)

// AuthenticationRequest describes the OIDC authentication request the browser is
// sent to after third-party login initiation.
type AuthenticationRequest struct {
	OIDCEndpoint   string
	ClientID       string
	LoginHint      string
	RedirectURI    string
	LtiMessageHint string
	State          string
	Nonce          string
}

// URL renders the request. Parameters keep a fixed order; optional ones are
// omitted when empty.
func (r AuthenticationRequest) URL() string {
	var b strings.Builder
	b.WriteString(r.OIDCEndpoint)
	if strings.Contains(r.OIDCEndpoint, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	param := func(k, v string, first bool) {
		if !first {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	param("client_id", r.ClientID, true)
	param("login_hint", r.LoginHint, false)
	param("redirect_uri", r.RedirectURI, false)
	if r.LtiMessageHint != "" {
		param("lti_message_hint", r.LtiMessageHint, false)
	}
	if r.State != "" {
		param("state", r.State, false)
	}
	param("nonce", r.Nonce, false)
	b.WriteString("&prompt=none&scope=openid&response_type=id_token&response_mode=form_post")
	return b.String()
}
