package deployment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterInput carries the fields an administrator supplies to register a deployment.
type RegisterInput struct {
	DeploymentID               string `json:"deploymentId" yaml:"deploymentId"`
	ClientID                   string `json:"clientId" yaml:"clientId"`
	Issuer                     string `json:"issuer" yaml:"issuer"`
	OIDCAuthenticationEndpoint string `json:"oidcAuthenticationEndpoint" yaml:"oidcAuthenticationEndpoint"`
	JWKSEndpoint               string `json:"jwksEndpoint" yaml:"jwksEndpoint"`
	PrivateKey                 string `json:"privateKey" yaml:"privateKey"`
	SignatureAlgorithm         string `json:"signatureAlgorithm" yaml:"signatureAlgorithm"`
	ApplicationKey             string `json:"applicationKey" yaml:"applicationKey"`
	ApplicationSecret          string `json:"applicationSecret" yaml:"applicationSecret"`
}

// ValidationError lists the problems found in a RegisterInput.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "deployment: invalid registration: " + strings.Join(e.Problems, "; ")
}

// Service implements tool deployment administration on top of a Store.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]ToolDeployment, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*ToolDeployment, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) FindByIssuer(ctx context.Context, issuer string) ([]ToolDeployment, error) {
	return s.store.FindByIssuer(ctx, issuer)
}

func (s *Service) FindByClientIDIssuer(ctx context.Context, clientID, issuer string) ([]ToolDeployment, error) {
	return s.store.FindByClientIDIssuer(ctx, clientID, issuer)
}

func (s *Service) Find(ctx context.Context, deploymentID, clientID, issuer string) (*ToolDeployment, error) {
	return s.store.FindByDeploymentClientIssuer(ctx, deploymentID, clientID, issuer)
}

// Register validates in and stores a new deployment with a fresh id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*ToolDeployment, error) {
	in = trimInput(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	existing, err := s.store.FindByDeploymentClientIssuer(ctx, in.DeploymentID, in.ClientID, in.Issuer)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}
	td := ToolDeployment{
		ID:                         uuid.NewString(),
		DeploymentID:               in.DeploymentID,
		ClientID:                   in.ClientID,
		Issuer:                     in.Issuer,
		OIDCAuthenticationEndpoint: in.OIDCAuthenticationEndpoint,
		JWKSEndpoint:               in.JWKSEndpoint,
		PrivateKey:                 in.PrivateKey,
		SignatureAlgorithm:         in.SignatureAlgorithm,
		ApplicationKey:             in.ApplicationKey,
		ApplicationSecret:          in.ApplicationSecret,
		CreatedAt:                  s.now().UTC(),
	}
	if err := s.store.Create(ctx, td); err != nil {
		return nil, err
	}
	s.log.Info("tool deployment registered",
		zap.String("id", td.ID),
		zap.String("issuer", td.Issuer),
		zap.String("client_id", td.ClientID),
		zap.String("deployment_id", td.DeploymentID))
	return &td, nil
}

// Unregister removes a deployment. Unknown ids are ignored.
func (s *Service) Unregister(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deployment: unregister %s: %w", id, err)
	}
	s.log.Info("tool deployment unregistered", zap.String("id", id))
	return nil
}

// Seed registers every input, skipping those already registered.
func (s *Service) Seed(ctx context.Context, inputs []RegisterInput) (int, error) {
	n := 0
	for _, in := range inputs {
		_, err := s.Register(ctx, in)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrAlreadyExists):
			continue
		default:
			return n, err
		}
	}
	return n, nil
}

func trimInput(in RegisterInput) RegisterInput {
	in.DeploymentID = strings.TrimSpace(in.DeploymentID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Issuer = strings.TrimSpace(in.Issuer)
	in.OIDCAuthenticationEndpoint = strings.TrimSpace(in.OIDCAuthenticationEndpoint)
	in.JWKSEndpoint = strings.TrimSpace(in.JWKSEndpoint)
	in.SignatureAlgorithm = strings.ToUpper(strings.TrimSpace(in.SignatureAlgorithm))
	in.PrivateKey = strings.TrimSpace(in.PrivateKey)
	return in
}

func validate(in RegisterInput) error {
	var problems []string
	required := []struct{ name, value string }{
		{"deploymentId", in.DeploymentID},
		{"clientId", in.ClientID},
		{"issuer", in.Issuer},
		{"oidcAuthenticationEndpoint", in.OIDCAuthenticationEndpoint},
		{"jwksEndpoint", in.JWKSEndpoint},
		{"privateKey", in.PrivateKey},
		{"signatureAlgorithm", in.SignatureAlgorithm},
		{"applicationKey", in.ApplicationKey},
		{"applicationSecret", in.ApplicationSecret},
	}
	for _, f := range required {
		if f.value == "" {
			problems = append(problems, f.name+" is required")
		}
	}
	for _, f := range []struct{ name, value string }{
		{"oidcAuthenticationEndpoint", in.OIDCAuthenticationEndpoint},
		{"jwksEndpoint", in.JWKSEndpoint},
	} {
		if f.value != "" && !isAbsoluteURL(f.value) {
			problems = append(problems, f.name+" must be an absolute URL")
		}
	}
	if in.SignatureAlgorithm != "" {
		if _, err := SigningMethod(in.SignatureAlgorithm); err != nil {
			problems = append(problems, "signatureAlgorithm is not supported")
		} else if in.PrivateKey != "" {
			if _, err := ParsePrivateKey(in.PrivateKey); err != nil {
				problems = append(problems, "privateKey does not match signatureAlgorithm")
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
