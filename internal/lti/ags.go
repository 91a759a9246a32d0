// internal/lti/ags.go
package lti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/metrics"
	"github.com/mind-engage/mindengage-lti-tool/internal/taking"
)

/*
AGS score publishing. A publish is two POSTs to {lineItemURL}/scores with one
access token:

	Started/NotReady            (no score fields)
	Completed/FullyGraded       (scoreGiven, scoreMaximum)

Either failure fails the publish. A "Started" that reached the platform is not
rolled back; platforms tolerate duplicates, so callers may retry the whole publish.
*/

const scoreMediaType = "application/vnd.ims.lis.v1.score+json"

// Activity and grading progress values used by the publisher.
const (
	ActivityStarted   = "Started"
	ActivityCompleted = "Completed"
	GradingNotReady   = "NotReady"
	GradingFully      = "FullyGraded"
)

// Score is the AGS score payload.
type Score struct {
	UserID           string   `json:"userId"`
	ScoreGiven       *float64 `json:"scoreGiven,omitempty"`
	ScoreMaximum     *float64 `json:"scoreMaximum,omitempty"`
	ActivityProgress string   `json:"activityProgress"`
	GradingProgress  string   `json:"gradingProgress"`
	Timestamp        string   `json:"timestamp"`
	Comment          string   `json:"comment,omitempty"`
}

// ScorePublisher posts learner scores to platform line items.
type ScorePublisher struct {
	HTTP    *http.Client
	Tokens  *TokenSource
	Log     *zap.Logger
	Metrics metrics.Recorder
	now     func() time.Time
}

func NewScorePublisher(hc *http.Client, tokens *TokenSource, log *zap.Logger, rec metrics.Recorder) *ScorePublisher {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if tokens == nil {
		tokens = NewTokenSource(hc, DefaultAssertionTTL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &ScorePublisher{HTTP: hc, Tokens: tokens, Log: log, Metrics: rec, now: time.Now}
}

// PublishScore reports scoreGiven out of the taking's maximum for the taking's learner.
func (p *ScorePublisher) PublishScore(ctx context.Context, et *taking.ExamTaking, td *deployment.ToolDeployment, scoreGiven float64) (err error) {
	defer func() { p.Metrics.IncScorePublication(metrics.StatusOf(err)) }()

	tok, err := p.Tokens.AccessToken(ctx, td, ScopeScore)
	if err != nil {
		return err
	}
	start := Score{
		UserID:           et.Subject,
		ActivityProgress: ActivityStarted,
		GradingProgress:  GradingNotReady,
		Timestamp:        p.timestamp(),
	}
	if err := p.postScore(ctx, td.Issuer, et.LineItemURL, tok.AccessToken, start); err != nil {
		return err
	}
	max := float64(et.MaxScore)
	complete := Score{
		UserID:           et.Subject,
		ScoreGiven:       &scoreGiven,
		ScoreMaximum:     &max,
		ActivityProgress: ActivityCompleted,
		GradingProgress:  GradingFully,
		Timestamp:        p.timestamp(),
	}
	if err := p.postScore(ctx, td.Issuer, et.LineItemURL, tok.AccessToken, complete); err != nil {
		return err
	}
	p.Log.Debug("score published",
		zap.String("issuer", td.Issuer),
		zap.Int64("exam_id", et.ExamID),
		zap.Float64("score", scoreGiven))
	return nil
}

func (p *ScorePublisher) postScore(ctx context.Context, issuer, lineItemURL, bearer string, s Score) error {
	body, err := json.Marshal(s)
	if err != nil {
		return &ExternalServiceError{Party: issuer, Msg: "encode score", Err: err}
	}
	u, err := scoresURL(lineItemURL)
	if err != nil {
		return &ExternalServiceError{Party: issuer, Msg: "bad line item url", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &ExternalServiceError{Party: issuer, Msg: "build score request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", scoreMediaType)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return &ExternalServiceError{Party: issuer, Msg: "post score", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &ExternalServiceError{Party: issuer, Err: httpErr("post score "+s.ActivityProgress, resp)}
	}
	return nil
}

// scoresURL appends /scores to the line item path; any query stays in place.
func scoresURL(lineItemURL string) (string, error) {
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/scores"
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/") + "/scores"
	}
	return u.String(), nil
}

func (p *ScorePublisher) timestamp() string {
	return p.now().UTC().Format(time.RFC3339Nano)
}

func httpErr(op string, resp *http.Response) error {
	return fmt.Errorf("%s: platform returned %s", op, resp.Status)
}
