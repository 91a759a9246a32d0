package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
)

// ServiceName identifies the evaluations service in ExternalServiceErrors.
const ServiceName = "evaluations-service"

// Lookup fetches exams by id. A missing exam is (nil, nil).
type Lookup interface {
	GetExamByID(ctx context.Context, id int64) (*Exam, error)
}

// Client talks to the evaluations service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// GetExamByID calls GET {base}/internal/exams/{id}.
func (c *Client) GetExamByID(ctx context.Context, id int64) (*Exam, error) {
	u := c.BaseURL + "/internal/exams/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: ServiceName, Msg: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &lti.ExternalServiceError{Party: ServiceName, Msg: "get exam", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, &lti.ExternalServiceError{Party: ServiceName, Msg: fmt.Sprintf("get exam %d: %s", id, resp.Status)}
	}
	var e Exam
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return nil, &lti.ExternalServiceError{Party: ServiceName, Msg: "decode exam", Err: err}
	}
	return &e, nil
}
