package launch

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti-tool/internal/auth"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/exam"
	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
	"github.com/mind-engage/mindengage-lti-tool/internal/replay"
	"github.com/mind-engage/mindengage-lti-tool/internal/taking"
)

var (
	keyOnce  sync.Once
	stateKey *rsa.PrivateKey
	toolKey  *rsa.PrivateKey
)

func testKeys() {
	keyOnce.Do(func() {
		var err error
		if stateKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if toolKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
}

/* --------------------------------- fakes ---------------------------------- */

type fakeDirectory struct{ items []deployment.ToolDeployment }

func (d *fakeDirectory) FindByID(_ context.Context, id string) (*deployment.ToolDeployment, error) {
	for i := range d.items {
		if d.items[i].ID == id {
			td := d.items[i]
			return &td, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) filter(match func(deployment.ToolDeployment) bool) []deployment.ToolDeployment {
	var out []deployment.ToolDeployment
	for _, td := range d.items {
		if match(td) {
			out = append(out, td)
		}
	}
	return out
}

func (d *fakeDirectory) FindByIssuer(_ context.Context, issuer string) ([]deployment.ToolDeployment, error) {
	return d.filter(func(td deployment.ToolDeployment) bool { return td.Issuer == issuer }), nil
}

func (d *fakeDirectory) FindByClientIDIssuer(_ context.Context, clientID, issuer string) ([]deployment.ToolDeployment, error) {
	return d.filter(func(td deployment.ToolDeployment) bool { return td.Issuer == issuer && td.ClientID == clientID }), nil
}

func (d *fakeDirectory) FindByDeploymentClientIssuer(_ context.Context, deploymentID, clientID, issuer string) (*deployment.ToolDeployment, error) {
	list := d.filter(func(td deployment.ToolDeployment) bool {
		return td.Issuer == issuer && td.ClientID == clientID && td.DeploymentID == deploymentID
	})
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// fakeValidator returns msg for any token and remembers the nonce it was asked to match.
type fakeValidator struct {
	msg       lti.Message
	err       error
	lastNonce string
	lastTD    string
}

func (v *fakeValidator) Validate(_ context.Context, _ string, td *deployment.ToolDeployment, nonce string) (lti.Message, error) {
	v.lastNonce = nonce
	v.lastTD = td.ID
	return v.msg, v.err
}

type fakeExams struct {
	exams map[int64]*exam.Exam
	calls int
}

func (f *fakeExams) GetExamByID(_ context.Context, id int64) (*exam.Exam, error) {
	f.calls++
	return f.exams[id], nil
}

type fakeTokens struct {
	token   *auth.TokenData
	subject string
	roles   []auth.Role
}

func (f *fakeTokens) TokenFor(_ context.Context, subject string, roles []auth.Role) (*auth.TokenData, error) {
	f.subject, f.roles = subject, roles
	return f.token, nil
}

type memTakings struct {
	mu    sync.Mutex
	items map[string]taking.ExamTaking
}

func takingKey(examID int64, subject string) string {
	b, _ := json.Marshal([]any{examID, subject})
	return string(b)
}

func (m *memTakings) Exists(_ context.Context, examID int64, subject string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[takingKey(examID, subject)]
	return ok, nil
}

func (m *memTakings) Create(_ context.Context, et taking.ExamTaking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]taking.ExamTaking{}
	}
	k := takingKey(et.ExamID, et.Subject)
	if _, ok := m.items[k]; !ok {
		m.items[k] = et
	}
	return nil
}

func (m *memTakings) Get(_ context.Context, examID int64, subject string) (*taking.ExamTaking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	et, ok := m.items[takingKey(examID, subject)]
	if !ok {
		return nil, nil
	}
	return &et, nil
}

type publishCall struct {
	taking taking.ExamTaking
	td     string
	score  float64
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (p *fakePublisher) PublishScore(_ context.Context, et *taking.ExamTaking, td *deployment.ToolDeployment, score float64) error {
	p.calls = append(p.calls, publishCall{taking: *et, td: td.ID, score: score})
	return p.err
}

/* --------------------------------- fixture -------------------------------- */

type fixture struct {
	svc       *Service
	codec     *lti.StateCodec
	dir       *fakeDirectory
	validator *fakeValidator
	exams     *fakeExams
	tokens    *fakeTokens
	takings   *memTakings
	publisher *fakePublisher
}

const (
	tdA = "11111111-1111-4111-8111-111111111111"
	tdB = "22222222-2222-4222-8222-222222222222"
	tdC = "33333333-3333-4333-8333-333333333333"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testKeys()
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(toolKey)}))
	mk := func(id, dep, client, iss string) deployment.ToolDeployment {
		return deployment.ToolDeployment{
			ID: id, DeploymentID: dep, ClientID: client, Issuer: iss,
			OIDCAuthenticationEndpoint: iss + "/auth", JWKSEndpoint: iss + "/jwks",
			PrivateKey: keyPEM, SignatureAlgorithm: "RS256",
		}
	}
	f := &fixture{
		codec: lti.NewStateCodec(stateKey),
		dir: &fakeDirectory{items: []deployment.ToolDeployment{
			mk(tdA, "dep-a", "client-1", "https://lms.example"),
			mk(tdB, "dep-b", "client-2", "https://lms.example"),
			mk(tdC, "dep-c", "client-3", "https://other.example"),
		}},
		validator: &fakeValidator{},
		exams:     &fakeExams{exams: map[int64]*exam.Exam{}},
		tokens:    &fakeTokens{token: &auth.TokenData{ID: "tok-1", AccessToken: "access", RefreshToken: "refresh"}},
		takings:   &memTakings{},
		publisher: &fakePublisher{},
	}
	f.svc = NewService(Deps{
		Deployments: f.dir,
		States:      f.codec,
		Validator:   f.validator,
		Publisher:   f.publisher,
		Exams:       f.exams,
		Tokens:      f.tokens,
		Takings:     f.takings,
		Replay:      replay.NewMemoryStore(0),
	})
	return f
}

// launchState mints the state a platform would echo back for deployment id.
func (f *fixture) launchState(t *testing.T, id, nonce string) string {
	t.Helper()
	tok, err := f.codec.EncodeLaunch(lti.LaunchState{ToolDeploymentID: mustUUID(t, id), Nonce: nonce})
	require.NoError(t, err)
	return tok
}

func message(t *testing.T, doc string) lti.Message {
	t.Helper()
	var m lti.Message
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	return m
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
