package lti

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deepLinkingRequest = `{
  "https://purl.imsglobal.org/spec/lti/claim/message_type": "LtiDeepLinkingRequest",
  "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings": {
    "deep_link_return_url": "https://lms.example/dl/return",
    "accept_types": ["link", "ltiResourceLink", "whiteboard"],
    "accept_presentation_document_targets": ["iframe", "window"],
    "accept_media_types": "image/*,text/html",
    "accept_multiple": "true",
    "auto_create": false,
    "title": "Pick an exam",
    "data": "csrf-token-42"
  },
  "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint": {
    "lineitems": "https://lms.example/course/1/lineitems",
    "scope": ["https://purl.imsglobal.org/spec/lti-ags/scope/lineitem", "https://purl.imsglobal.org/spec/lti-ags/scope/score"]
  }
}`

func TestExtractSettings(t *testing.T) {
	s, err := ExtractSettings(messageFromJSON(t, deepLinkingRequest))
	require.NoError(t, err)

	assert.Equal(t, "https://lms.example/dl/return", s.ReturnURL)
	assert.Equal(t, []string{ContentTypeLink, ContentTypeResourceLink, ContentTypeOther}, s.AcceptTypes)
	assert.Equal(t, []string{"iframe", "window"}, s.AcceptPresentationDocumentTargets)
	assert.Equal(t, "image/*,text/html", s.AcceptMediaTypes)
	require.NotNil(t, s.AcceptMultiple)
	assert.True(t, *s.AcceptMultiple)
	require.NotNil(t, s.AutoCreate)
	assert.False(t, *s.AutoCreate)
	assert.Equal(t, "Pick an exam", s.Title)
	assert.Empty(t, s.Text)
	assert.Equal(t, "csrf-token-42", s.Data)
}

func TestExtractSettings_Rejects(t *testing.T) {
	cases := map[string]string{
		"wrong message type": `{"https://purl.imsglobal.org/spec/lti/claim/message_type": "LtiResourceLinkRequest"}`,
		"settings not an object": `{
			"https://purl.imsglobal.org/spec/lti/claim/message_type": "LtiDeepLinkingRequest",
			"https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings": "nope"}`,
		"missing targets": `{
			"https://purl.imsglobal.org/spec/lti/claim/message_type": "LtiDeepLinkingRequest",
			"https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings": {
				"deep_link_return_url": "https://lms.example/dl/return",
				"accept_types": ["ltiResourceLink"]}}`,
		"missing return url": `{
			"https://purl.imsglobal.org/spec/lti/claim/message_type": "LtiDeepLinkingRequest",
			"https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings": {
				"accept_types": ["ltiResourceLink"],
				"accept_presentation_document_targets": ["iframe"]}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractSettings(messageFromJSON(t, doc))
			var bad *BadLtiRequestError
			require.True(t, errors.As(err, &bad), "got %v", err)
		})
	}

	_, err := ExtractSettings(messageFromJSON(t, cases["wrong message type"]))
	assert.Contains(t, err.Error(), `"LtiDeepLinkingRequest"`)
}

func TestExtractCapabilities(t *testing.T) {
	c, err := ExtractCapabilities(messageFromJSON(t, deepLinkingRequest))
	require.NoError(t, err)
	assert.Equal(t, "https://lms.example/course/1/lineitems", c.LineItemsURL)
	assert.Empty(t, c.LineItemURL)
	assert.Contains(t, c.Scopes, ScopeScore)

	c, err = ExtractCapabilities(messageFromJSON(t, `{"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint": {"lineitem": "https://lms.example/li/1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "https://lms.example/li/1", c.LineItemURL)
	assert.Empty(t, c.Scopes)

	_, err = ExtractCapabilities(messageFromJSON(t, `{"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint": ["x"]}`))
	var bad *BadLtiRequestError
	assert.True(t, errors.As(err, &bad))
	_, err = ExtractCapabilities(Message{})
	assert.True(t, errors.As(err, &bad))
}

func TestValidateExamSelection(t *testing.T) {
	ok := DeepLinkingSettings{AcceptTypes: []string{ContentTypeResourceLink}}
	scoped := AGSCapabilities{Scopes: []string{ScopeScore}}

	assert.NoError(t, ValidateExamSelection(ok, scoped))

	err := ValidateExamSelection(DeepLinkingSettings{AcceptTypes: []string{ContentTypeLink}}, scoped)
	require.Error(t, err)
	assert.Equal(t, "missing lti resource link in accept types", err.Error())

	err = ValidateExamSelection(ok, AGSCapabilities{})
	require.Error(t, err)
	assert.Equal(t, "missing score scope", err.Error())
}

func TestBuildAndSignDeepLinkingResponse(t *testing.T) {
	td := testDeployment(t)
	now := time.Now().Truncate(time.Second)
	link := ResourceLink{
		Title:    "Midterm",
		URL:      "https://tool.example/exams/7",
		LineItem: &LineItemHint{ScoreMaximum: 100, ResourceID: "7"},
		Custom:   map[string]string{"exam-id": "7"},
	}

	msg := BuildDeepLinkingResponse(td, "csrf-token-42", []ContentItem{link}, now)
	assert.Equal(t, td.ClientID, msg[ClaimIssuer])
	assert.Equal(t, td.Issuer, msg[ClaimAudience])
	assert.Equal(t, MessageTypeDeepLinkingResponse, msg[ClaimMessageType])
	assert.Equal(t, "csrf-token-42", msg[ClaimDeepLinkingData])
	assert.NotEmpty(t, msg[ClaimNonce])

	signed, err := Sign(msg, td)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) { return &toolKey.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.Equal(t, td.ID, tok.Header["kid"])

	iat, ok := claims[ClaimIssuedAt].(float64)
	require.True(t, ok, "iat is numeric, got %T", claims[ClaimIssuedAt])
	exp, ok := claims[ClaimExpiration].(float64)
	require.True(t, ok)
	assert.Equal(t, float64(now.Unix()), iat)
	assert.Equal(t, float64(600), exp-iat)
	assert.Equal(t, td.DeploymentID, claims[ClaimDeploymentID])
	assert.Equal(t, Version, claims[ClaimVersion])

	items, ok := claims[ClaimContentItems].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, ContentTypeResourceLink, item["type"])
	assert.Equal(t, "Midterm", item["title"])
	assert.Equal(t, map[string]any{"scoreMaximum": float64(100), "resourceId": "7"}, item["lineItem"])
}

func TestBuildDeepLinkingResponse_NoData(t *testing.T) {
	msg := BuildDeepLinkingResponse(testDeployment(t), "", nil, time.Now())
	assert.False(t, msg.Has(ClaimDeepLinkingData))
}

func TestSign_BadKey(t *testing.T) {
	td := testDeployment(t)
	td.PrivateKey = "garbage"
	_, err := Sign(Message{}, td)
	assert.Error(t, err)

	td = testDeployment(t)
	td.SignatureAlgorithm = "HS256"
	_, err = Sign(Message{}, td)
	assert.Error(t, err)
}

func TestResourceLink_JSON(t *testing.T) {
	w := 64
	raw, err := json.Marshal(ResourceLink{Title: "Quiz", Icon: &Image{URL: "https://x/i.png", Width: &w}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ltiResourceLink","title":"Quiz","icon":{"url":"https://x/i.png","width":64}}`, string(raw))
}
