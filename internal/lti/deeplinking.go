// internal/lti/deeplinking.go
package lti

import (
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// ScopeScore is the AGS scope required to publish scores.
const ScopeScore = "https://purl.imsglobal.org/spec/lti-ags/scope/score"

// ContentTypeOther stands in for accept_types values this tool does not know.
const ContentTypeOther = "other"

// DeepLinkingResponseTTL bounds the validity of deep-linking responses.
const DeepLinkingResponseTTL = 10 * time.Minute

// DeepLinkingSettings is the parsed deep_linking_settings claim.
type DeepLinkingSettings struct {
	ReturnURL                         string
	AcceptTypes                       []string
	AcceptPresentationDocumentTargets []string
	AcceptMediaTypes                  string
	AcceptMultiple                    *bool
	AutoCreate                        *bool
	Title                             string
	Text                              string
	Data                              string
}

// AGSCapabilities is the parsed AGS endpoint claim.
type AGSCapabilities struct {
	LineItemsURL string
	LineItemURL  string
	Scopes       []string
}

var knownContentTypes = map[string]bool{
	ContentTypeLink:         true,
	ContentTypeResourceLink: true,
	ContentTypeFile:         true,
	ContentTypeHTML:         true,
	ContentTypeImage:        true,
}

// ExtractSettings requires an LtiDeepLinkingRequest message and parses its settings claim.
func ExtractSettings(msg Message) (DeepLinkingSettings, error) {
	if msg.MessageType() != MessageTypeDeepLinkingRequest {
		return DeepLinkingSettings{}, badRequest(`the LTI message type must be "` + MessageTypeDeepLinkingRequest + `"`)
	}
	raw, ok := msg.Object(ClaimDeepLinkingSettings)
	if !ok {
		return DeepLinkingSettings{}, badRequest("the deep linking settings claim must be an object")
	}

	var s DeepLinkingSettings
	s.ReturnURL, _ = raw["deep_link_return_url"].(string)
	if types, ok := asStringSlice(raw["accept_types"]); ok {
		s.AcceptTypes = make([]string, 0, len(types))
		for _, t := range types {
			if !knownContentTypes[t] {
				t = ContentTypeOther
			}
			s.AcceptTypes = append(s.AcceptTypes, t)
		}
	}
	s.AcceptPresentationDocumentTargets, _ = asStringSlice(raw["accept_presentation_document_targets"])
	if s.ReturnURL == "" || s.AcceptTypes == nil || s.AcceptPresentationDocumentTargets == nil {
		return DeepLinkingSettings{}, badRequest("the deep linking settings must contain " +
			`"deep_link_return_url", "accept_types" and "accept_presentation_document_targets"`)
	}
	s.AcceptMediaTypes, _ = raw["accept_media_types"].(string)
	if b, ok := asBool(raw["accept_multiple"]); ok {
		s.AcceptMultiple = &b
	}
	if b, ok := asBool(raw["auto_create"]); ok {
		s.AutoCreate = &b
	}
	s.Title, _ = raw["title"].(string)
	s.Text, _ = raw["text"].(string)
	s.Data, _ = raw["data"].(string)
	return s, nil
}

// ExtractCapabilities parses the AGS endpoint claim. A missing scope list is empty.
func ExtractCapabilities(msg Message) (AGSCapabilities, error) {
	raw, ok := msg.Object(ClaimAGSEndpoint)
	if !ok {
		return AGSCapabilities{}, badRequest("the AGS capabilities claim must be an object")
	}
	var c AGSCapabilities
	c.LineItemsURL, _ = raw["lineitems"].(string)
	c.LineItemURL, _ = raw["lineitem"].(string)
	c.Scopes, _ = asStringSlice(raw["scope"])
	return c, nil
}

// RequireScoreScope fails unless the platform granted score publication.
func RequireScoreScope(c AGSCapabilities) error {
	if !contains(c.Scopes, ScopeScore) {
		return badRequest("missing score scope")
	}
	return nil
}

// ValidateExamSelection checks that a resource link can be returned and later graded.
func ValidateExamSelection(s DeepLinkingSettings, c AGSCapabilities) error {
	if !contains(s.AcceptTypes, ContentTypeResourceLink) {
		return badRequest("missing lti resource link in accept types")
	}
	return RequireScoreScope(c)
}

// BuildDeepLinkingResponse assembles the claims of a deep-linking response. The tool is
// the issuer and the platform the audience. Timestamps stay time.Time until Sign.
func BuildDeepLinkingResponse(td *deployment.ToolDeployment, data string, items []ContentItem, now time.Time) Message {
	msg := Message{
		ClaimIssuer:          td.ClientID,
		ClaimAudience:        td.Issuer,
		ClaimAuthorizedParty: td.Issuer,
		ClaimIssuedAt:        now,
		ClaimExpiration:      now.Add(DeepLinkingResponseTTL),
		ClaimNonce:           uuid.NewString(),
		ClaimDeploymentID:    td.DeploymentID,
		ClaimMessageType:     MessageTypeDeepLinkingResponse,
		ClaimVersion:         Version,
		ClaimContentItems:    items,
	}
	if data != "" {
		msg[ClaimDeepLinkingData] = data
	}
	return msg
}
