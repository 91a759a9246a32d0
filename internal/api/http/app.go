// internal/api/http/app.go
package http

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/launch"
	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
)

// Launcher is the launch flow behind the /lti/app routes.
type Launcher interface {
	LoginInitiation(ctx context.Context, req launch.LoginInitiationRequest) (lti.AuthenticationRequest, error)
	ExamSelection(ctx context.Context, resp launch.AuthenticationResponse) (string, error)
	ExamSelected(ctx context.Context, req launch.ExamSelectedRequest) (launch.ExamSelectedResponse, error)
	TakeExam(ctx context.Context, resp launch.AuthenticationResponse) (launch.ExamTakingResponse, error)
	ScoreExam(ctx context.Context, req launch.ExamScoringRequest) error
}

// POST /lti/app/login-initiation
func LoginInitiationHandler(l Launcher, log *zap.Logger) http.HandlerFunc {
	type in struct {
		Issuer         string `json:"issuer"`
		LoginHint      string `json:"loginHint"`
		TargetLinkURI  string `json:"targetLinkUri"`
		LtiMessageHint string `json:"ltiMessageHint"`
		ClientID       string `json:"clientId"`
		DeploymentID   string `json:"deploymentId"`
	}
	type out struct {
		URI   string `json:"uri"`
		State string `json:"state"`
		Nonce string `json:"nonce"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req in
		if !decodeJSON(w, r, &req) {
			return
		}
		if missing := missingFields(map[string]string{
			"issuer": req.Issuer, "loginHint": req.LoginHint, "targetLinkUri": req.TargetLinkURI,
		}); missing != "" {
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "missing "+missing)
			return
		}
		ar, err := l.LoginInitiation(r.Context(), launch.LoginInitiationRequest{
			Issuer:         strings.TrimSpace(req.Issuer),
			LoginHint:      req.LoginHint,
			TargetLinkURI:  req.TargetLinkURI,
			LtiMessageHint: req.LtiMessageHint,
			ClientID:       strings.TrimSpace(req.ClientID),
			DeploymentID:   strings.TrimSpace(req.DeploymentID),
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out{URI: ar.URL(), State: ar.State, Nonce: ar.Nonce})
	}
}

type authResponseIn struct {
	IDToken string `json:"idToken"`
	State   string `json:"state"`
}

func (a authResponseIn) valid(w http.ResponseWriter) bool {
	if missing := missingFields(map[string]string{"idToken": a.IDToken, "state": a.State}); missing != "" {
		writeErr(w, http.StatusBadRequest, CodeBadRequest, "missing "+missing)
		return false
	}
	return true
}

// POST /lti/app/exam-selection
func ExamSelectionHandler(l Launcher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authResponseIn
		if !decodeJSON(w, r, &req) || !req.valid(w) {
			return
		}
		state, err := l.ExamSelection(r.Context(), launch.AuthenticationResponse{IDToken: req.IDToken, State: req.State})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": state})
	}
}

// POST /lti/app/exam-selected
func ExamSelectedHandler(l Launcher, log *zap.Logger) http.HandlerFunc {
	type in struct {
		ExamID    int64      `json:"examId"`
		State     string     `json:"state"`
		URL       string     `json:"url"`
		Icon      *lti.Image `json:"icon"`
		Thumbnail *lti.Image `json:"thumbnail"`
	}
	type examOut struct {
		ID          int64     `json:"id"`
		Description string    `json:"description"`
		StartingAt  time.Time `json:"startingAt"`
		Duration    int64     `json:"duration"`
		MaxScore    int       `json:"maxScore"`
	}
	type out struct {
		Result    string   `json:"result"`
		ReturnURL string   `json:"returnUrl,omitempty"`
		JWT       string   `json:"jwt,omitempty"`
		Exam      *examOut `json:"exam,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req in
		if !decodeJSON(w, r, &req) {
			return
		}
		if missing := missingFields(map[string]string{"state": req.State, "url": req.URL}); missing != "" {
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "missing "+missing)
			return
		}
		res, err := l.ExamSelected(r.Context(), launch.ExamSelectedRequest{
			ExamID: req.ExamID, State: req.State, URL: req.URL, Icon: req.Icon, Thumbnail: req.Thumbnail,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		resp := out{Result: res.Result, ReturnURL: res.ReturnURL, JWT: res.JWT}
		if e := res.Exam; e != nil {
			resp.Exam = &examOut{ID: e.ID, Description: e.Description, StartingAt: e.StartingAt, Duration: e.Duration, MaxScore: e.MaxScore}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// POST /lti/app/exam-taking
func ExamTakingHandler(l Launcher, log *zap.Logger) http.HandlerFunc {
	type out struct {
		ExamID       int64  `json:"examId"`
		TokenID      string `json:"tokenId"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ReturnURL    string `json:"returnUrl,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req authResponseIn
		if !decodeJSON(w, r, &req) || !req.valid(w) {
			return
		}
		res, err := l.TakeExam(r.Context(), launch.AuthenticationResponse{IDToken: req.IDToken, State: req.State})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out{
			ExamID:       res.ExamID,
			TokenID:      res.TokenID,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			ReturnURL:    res.ReturnURL,
		})
	}
}

// PUT /lti/app/exam-scoring
func ExamScoringHandler(l Launcher, log *zap.Logger) http.HandlerFunc {
	type in struct {
		ExamID  int64   `json:"examId"`
		Subject string  `json:"subject"`
		Score   float64 `json:"score"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req in
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Subject) == "" {
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "missing subject")
			return
		}
		if req.Score < 0 {
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "score must not be negative")
			return
		}
		err := l.ScoreExam(r.Context(), launch.ExamScoringRequest{ExamID: req.ExamID, Subject: req.Subject, Score: req.Score})
		if err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// missingFields returns the sorted, comma-separated names of blank fields.
func missingFields(fields map[string]string) string {
	var names []string
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
