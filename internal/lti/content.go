// internal/lti/content.go
package lti

import (
	"encoding/json"
	"time"
)

// Deep-linking content types (accept_types values).
const (
	ContentTypeLink         = "link"
	ContentTypeResourceLink = "ltiResourceLink"
	ContentTypeFile         = "file"
	ContentTypeHTML         = "html"
	ContentTypeImage        = "image"
)

// ContentItem is one entry of the content_items claim. The JSON form of every
// item carries its ContentType under "type".
type ContentItem interface {
	ContentType() string
}

// Image is an icon or thumbnail reference.
type Image struct {
	URL    string `json:"url"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// IFrame is a sizing hint for embedding.
type IFrame struct {
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// LineItemHint asks the platform to create a gradebook column for the link.
type LineItemHint struct {
	Label        string `json:"label,omitempty"`
	ScoreMaximum int    `json:"scoreMaximum"`
	ResourceID   string `json:"resourceId,omitempty"`
	Tag          string `json:"tag,omitempty"`
}

// TimeWindow bounds availability or submission. Either end may be open.
type TimeWindow struct {
	StartDateTime *time.Time `json:"startDateTime,omitempty"`
	EndDateTime   *time.Time `json:"endDateTime,omitempty"`
}

// ResourceLink is an LTI resource link content item.
type ResourceLink struct {
	Title      string            `json:"title,omitempty"`
	Text       string            `json:"text,omitempty"`
	URL        string            `json:"url,omitempty"`
	Icon       *Image            `json:"icon,omitempty"`
	Thumbnail  *Image            `json:"thumbnail,omitempty"`
	IFrame     *IFrame           `json:"iframe,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
	LineItem   *LineItemHint     `json:"lineItem,omitempty"`
	Available  *TimeWindow       `json:"available,omitempty"`
	Submission *TimeWindow       `json:"submission,omitempty"`
}

func (ResourceLink) ContentType() string { return ContentTypeResourceLink }

func (r ResourceLink) MarshalJSON() ([]byte, error) {
	type plain ResourceLink
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: r.ContentType(), plain: plain(r)})
}
