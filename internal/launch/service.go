// Package launch sequences the LTI launch flows exposed by the tool:
// login initiation, exam selection (deep linking), exam taking and scoring.
package launch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/auth"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/exam"
	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
	"github.com/mind-engage/mindengage-lti-tool/internal/metrics"
	"github.com/mind-engage/mindengage-lti-tool/internal/replay"
	"github.com/mind-engage/mindengage-lti-tool/internal/taking"
)

const (
	customExamID          = "exam-id"
	presentationReturnURL = "return_url"
	replayKindNonce       = "nonce"
	defaultNonceTTL       = 24 * time.Hour
)

// Operation names used for logs and metrics.
const (
	OpLoginInitiation = "login_initiation"
	OpExamSelection   = "exam_selection"
	OpExamSelected    = "exam_selected"
	OpTakeExam        = "take_exam"
	OpScoreExam       = "score_exam"
)

// IDTokenValidator verifies an id_token for a tool deployment.
type IDTokenValidator interface {
	Validate(ctx context.Context, idToken string, td *deployment.ToolDeployment, expectedNonce string) (lti.Message, error)
}

// ScorePublisher publishes a learner's score to the platform gradebook.
type ScorePublisher interface {
	PublishScore(ctx context.Context, et *taking.ExamTaking, td *deployment.ToolDeployment, scoreGiven float64) error
}

// Deps are the collaborators of a Service. Replay, Log and Metrics are optional.
type Deps struct {
	Deployments deployment.Directory
	States      *lti.StateCodec
	Validator   IDTokenValidator
	Publisher   ScorePublisher
	Exams       exam.Lookup
	Tokens      auth.Issuer
	Takings     taking.Store
	Replay      replay.Store
	NonceTTL    time.Duration
	Log         *zap.Logger
	Metrics     metrics.Recorder
}

// Service is the launch orchestrator. It is stateless between calls apart from
// its collaborators and safe for concurrent use.
type Service struct {
	deployments deployment.Directory
	states      *lti.StateCodec
	validator   IDTokenValidator
	publisher   ScorePublisher
	exams       exam.Lookup
	tokens      auth.Issuer
	takings     taking.Store
	replay      replay.Store
	nonceTTL    time.Duration
	log         *zap.Logger
	metrics     metrics.Recorder
}

func NewService(d Deps) *Service {
	s := &Service{
		deployments: d.Deployments,
		states:      d.States,
		validator:   d.Validator,
		publisher:   d.Publisher,
		exams:       d.Exams,
		tokens:      d.Tokens,
		takings:     d.Takings,
		replay:      d.Replay,
		nonceTTL:    d.NonceTTL,
		log:         d.Log,
		metrics:     d.Metrics,
	}
	if s.nonceTTL <= 0 {
		s.nonceTTL = defaultNonceTTL
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

/* ---------------------------------- types --------------------------------- */

// LoginInitiationRequest is the third-party initiated login sent by the platform.
type LoginInitiationRequest struct {
	Issuer         string
	LoginHint      string
	TargetLinkURI  string
	LtiMessageHint string
	ClientID       string
	DeploymentID   string
}

// AuthenticationResponse is the id_token and state posted back by the platform.
type AuthenticationResponse struct {
	IDToken string
	State   string
}

// ExamSelectedRequest confirms the exam chosen during deep linking.
type ExamSelectedRequest struct {
	ExamID    int64
	State     string
	URL       string
	Icon      *lti.Image
	Thumbnail *lti.Image
}

// Exam-selected outcomes.
const (
	SelectedOK          = "ok"
	SelectedNonExisting = "non-existing"
	SelectedNotUpcoming = "not-upcoming"
)

// ExamData summarizes the selected exam for the caller.
type ExamData struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	StartingAt  time.Time `json:"startingAt"`
	Duration    int64     `json:"duration"`
	MaxScore    int       `json:"maxScore"`
}

// ExamSelectedResponse carries the signed deep-linking response when Result is SelectedOK.
type ExamSelectedResponse struct {
	Result    string
	ReturnURL string
	JWT       string
	Exam      *ExamData
}

// ExamTakingResponse grants a learner access to an exam.
type ExamTakingResponse struct {
	ExamID       int64
	TokenID      string
	AccessToken  string
	RefreshToken string
	ReturnURL    string
}

// ExamScoringRequest publishes a learner's score.
type ExamScoringRequest struct {
	ExamID  int64
	Subject string
	Score   float64
}

/* ------------------------------- operations ------------------------------- */

// LoginInitiation resolves the tool deployment and builds the OIDC authentication request.
// With a client id and deployment id the exact triple is tried; with only a client id,
// the first deployment for (client id, issuer). Either way the first deployment for the
// issuer is the fallback.
func (s *Service) LoginInitiation(ctx context.Context, req LoginInitiationRequest) (out lti.AuthenticationRequest, err error) {
	defer s.observe(OpLoginInitiation, time.Now(), &err)

	td, err := s.resolveDeployment(ctx, req)
	if err != nil {
		return lti.AuthenticationRequest{}, err
	}
	id, err := deploymentUUID(td)
	if err != nil {
		return lti.AuthenticationRequest{}, err
	}
	nonce := uuid.NewString()
	state, err := s.states.EncodeLaunch(lti.LaunchState{ToolDeploymentID: id, Nonce: nonce})
	if err != nil {
		return lti.AuthenticationRequest{}, fmt.Errorf("encode launch state: %w", err)
	}
	s.log.Debug("login initiation",
		zap.String("issuer", td.Issuer),
		zap.String("client_id", td.ClientID),
		zap.String("deployment_id", td.DeploymentID))
	return lti.AuthenticationRequest{
		OIDCEndpoint:   td.OIDCAuthenticationEndpoint,
		ClientID:       td.ClientID,
		LoginHint:      req.LoginHint,
		RedirectURI:    req.TargetLinkURI,
		LtiMessageHint: req.LtiMessageHint,
		State:          state,
		Nonce:          nonce,
	}, nil
}

// ExamSelection handles a deep-linking request and returns the selection state.
func (s *Service) ExamSelection(ctx context.Context, resp AuthenticationResponse) (state string, err error) {
	defer s.observe(OpExamSelection, time.Now(), &err)

	td, msg, err := s.authenticate(ctx, resp)
	if err != nil {
		return "", err
	}
	settings, err := lti.ExtractSettings(msg)
	if err != nil {
		return "", err
	}
	caps, err := lti.ExtractCapabilities(msg)
	if err != nil {
		return "", err
	}
	if err := lti.ValidateExamSelection(settings, caps); err != nil {
		return "", err
	}
	id, err := deploymentUUID(td)
	if err != nil {
		return "", err
	}
	state, err = s.states.EncodeSelection(lti.SelectionState{
		ReturnURL:        settings.ReturnURL,
		Data:             settings.Data,
		ToolDeploymentID: id,
		Nonce:            uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("encode selection state: %w", err)
	}
	s.log.Debug("exam selection started", zap.String("issuer", td.Issuer), zap.String("client_id", td.ClientID))
	return state, nil
}

// ExamSelected builds the signed deep-linking response for an upcoming exam.
func (s *Service) ExamSelected(ctx context.Context, req ExamSelectedRequest) (out ExamSelectedResponse, err error) {
	defer s.observe(OpExamSelected, time.Now(), &err)

	e, err := s.exams.GetExamByID(ctx, req.ExamID)
	if err != nil {
		return ExamSelectedResponse{}, err
	}
	if e == nil {
		return ExamSelectedResponse{Result: SelectedNonExisting}, nil
	}
	if !e.Upcoming() {
		return ExamSelectedResponse{Result: SelectedNotUpcoming}, nil
	}
	st, err := s.states.DecodeSelection(req.State)
	if err != nil {
		return ExamSelectedResponse{}, err
	}
	td, err := s.deploymentFromState(ctx, st.ToolDeploymentID)
	if err != nil {
		return ExamSelectedResponse{}, err
	}

	link := resourceLinkFor(e)
	link.URL = req.URL
	link.Icon = req.Icon
	link.Thumbnail = req.Thumbnail
	msg := lti.BuildDeepLinkingResponse(td, st.Data, []lti.ContentItem{link}, time.Now())
	jwt, err := lti.Sign(msg, td)
	if err != nil {
		return ExamSelectedResponse{}, &lti.IllegalStateError{Msg: "sign deep linking response", Err: err}
	}
	s.log.Debug("exam selected", zap.String("issuer", td.Issuer), zap.Int64("exam_id", e.ID))
	return ExamSelectedResponse{
		Result:    SelectedOK,
		ReturnURL: st.ReturnURL,
		JWT:       jwt,
		Exam: &ExamData{
			ID:          e.ID,
			Description: e.Description,
			StartingAt:  e.StartingAt,
			Duration:    e.Duration,
			MaxScore:    e.MaxScore,
		},
	}, nil
}

// TakeExam handles a resource-link launch: it records the exam taking and issues
// learner tokens.
func (s *Service) TakeExam(ctx context.Context, resp AuthenticationResponse) (out ExamTakingResponse, err error) {
	defer s.observe(OpTakeExam, time.Now(), &err)

	td, msg, err := s.authenticate(ctx, resp)
	if err != nil {
		return ExamTakingResponse{}, err
	}
	if msg.MessageType() != lti.MessageTypeResourceLink {
		return ExamTakingResponse{}, &lti.BadLtiRequestError{Msg: "message type should be an " + lti.MessageTypeResourceLink}
	}
	caps, err := lti.ExtractCapabilities(msg)
	if err != nil {
		return ExamTakingResponse{}, err
	}
	if err := lti.RequireScoreScope(caps); err != nil {
		return ExamTakingResponse{}, err
	}
	examID, err := examIDOf(msg)
	if err != nil {
		return ExamTakingResponse{}, err
	}
	e, err := s.exams.GetExamByID(ctx, examID)
	if err != nil {
		return ExamTakingResponse{}, err
	}
	if e == nil {
		return ExamTakingResponse{}, &lti.IllegalStateError{Msg: fmt.Sprintf("could not retrieve exam %d", examID)}
	}
	subject, ok := msg.String(lti.ClaimSubject)
	if !ok || subject == "" {
		return ExamTakingResponse{}, &lti.BadLtiRequestError{Msg: "missing user id"}
	}
	if caps.LineItemURL == "" {
		return ExamTakingResponse{}, &lti.BadLtiRequestError{Msg: "missing lineitem capability"}
	}

	exists, err := s.takings.Exists(ctx, examID, subject)
	if err != nil {
		return ExamTakingResponse{}, fmt.Errorf("check exam taking: %w", err)
	}
	if !exists {
		err := s.takings.Create(ctx, taking.ExamTaking{
			ExamID:           examID,
			Subject:          subject,
			LineItemURL:      caps.LineItemURL,
			MaxScore:         e.MaxScore,
			ToolDeploymentID: td.ID,
		})
		if err != nil {
			return ExamTakingResponse{}, fmt.Errorf("create exam taking: %w", err)
		}
	}

	tok, err := s.tokens.TokenFor(ctx, subject, []auth.Role{auth.RoleStudent})
	if err != nil {
		return ExamTakingResponse{}, err
	}
	if tok == nil {
		return ExamTakingResponse{}, &lti.IllegalStateError{Msg: "could not get token"}
	}
	returnURL, _ := msg.LaunchPresentation(presentationReturnURL)
	s.log.Debug("exam taking",
		zap.String("issuer", td.Issuer),
		zap.Int64("exam_id", examID),
		zap.Bool("first_launch", !exists))
	return ExamTakingResponse{
		ExamID:       examID,
		TokenID:      tok.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ReturnURL:    returnURL,
	}, nil
}

// ScoreExam publishes the score of a previously launched exam.
func (s *Service) ScoreExam(ctx context.Context, req ExamScoringRequest) (err error) {
	defer s.observe(OpScoreExam, time.Now(), &err)

	et, err := s.takings.Get(ctx, req.ExamID, req.Subject)
	if err != nil {
		return fmt.Errorf("get exam taking: %w", err)
	}
	if et == nil {
		return &lti.IllegalStateError{Msg: "no exam taking with the given arguments"}
	}
	td, err := s.deployments.FindByID(ctx, et.ToolDeploymentID)
	if err != nil {
		return fmt.Errorf("find tool deployment: %w", err)
	}
	if td == nil {
		return &lti.IllegalStateError{Msg: "exam taking references a missing tool deployment"}
	}
	return s.publisher.PublishScore(ctx, et, td, req.Score)
}

/* --------------------------------- helpers -------------------------------- */

func (s *Service) resolveDeployment(ctx context.Context, req LoginInitiationRequest) (*deployment.ToolDeployment, error) {
	if req.ClientID != "" {
		if req.DeploymentID != "" {
			td, err := s.deployments.FindByDeploymentClientIssuer(ctx, req.DeploymentID, req.ClientID, req.Issuer)
			if err != nil {
				return nil, err
			}
			if td != nil {
				return td, nil
			}
		} else {
			list, err := s.deployments.FindByClientIDIssuer(ctx, req.ClientID, req.Issuer)
			if err != nil {
				return nil, err
			}
			if len(list) > 0 {
				return &list[0], nil
			}
		}
	}
	list, err := s.deployments.FindByIssuer(ctx, req.Issuer)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &lti.NotFoundError{Msg: "no tool deployment for issuer " + req.Issuer}
	}
	return &list[0], nil
}

// authenticate decodes the launch state, validates the id_token against the
// deployment it names and consumes the launch nonce.
func (s *Service) authenticate(ctx context.Context, resp AuthenticationResponse) (*deployment.ToolDeployment, lti.Message, error) {
	st, err := s.states.DecodeLaunch(resp.State)
	if err != nil {
		return nil, nil, err
	}
	td, err := s.deploymentFromState(ctx, st.ToolDeploymentID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.validator.Validate(ctx, resp.IDToken, td, st.Nonce)
	if err != nil {
		return nil, nil, err
	}
	if s.replay != nil {
		first, err := s.replay.Use(ctx, replayKindNonce, st.Nonce, s.nonceTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("consume nonce: %w", err)
		}
		if !first {
			return nil, nil, &lti.AuthenticationError{Msg: "nonce already used"}
		}
	}
	return td, msg, nil
}

func (s *Service) deploymentFromState(ctx context.Context, id uuid.UUID) (*deployment.ToolDeployment, error) {
	td, err := s.deployments.FindByID(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, &lti.IllegalStateError{Msg: "state references an unknown tool deployment"}
	}
	return td, nil
}

func deploymentUUID(td *deployment.ToolDeployment) (uuid.UUID, error) {
	id, err := uuid.Parse(td.ID)
	if err != nil {
		return uuid.Nil, &lti.IllegalStateError{Msg: "tool deployment id is not a UUID", Err: err}
	}
	return id, nil
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, metrics.StatusOf(*err), time.Since(start))
}

func examIDOf(msg lti.Message) (int64, error) {
	raw, ok := msg.CustomProperty(customExamID)
	if !ok {
		return 0, &lti.BadLtiRequestError{Msg: "missing exam id"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &lti.BadLtiRequestError{Msg: "missing exam id"}
	}
	return id, nil
}

func resourceLinkFor(e *exam.Exam) lti.ResourceLink {
	id := strconv.FormatInt(e.ID, 10)
	return lti.ResourceLink{
		Title:    e.Description,
		LineItem: &lti.LineItemHint{ScoreMaximum: e.MaxScore, ResourceID: id},
		Custom:   map[string]string{customExamID: id},
	}
}
