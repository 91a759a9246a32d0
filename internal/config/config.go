package config

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// ReplayBackend selects where used launch nonces are recorded.
type ReplayBackend string

const (
	ReplaySQL    ReplayBackend = "sql"
	ReplayMemory ReplayBackend = "memory" // single process only
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogLevel string

	DBDriver string
	DBDSN    string

	CORSOrigins []string

	// State token key pair (PEM). In dev mode an ephemeral key is generated when unset.
	StateKeyPEM string

	EvaluationsServiceURL string
	TokensServiceURL      string

	HTTPTimeout  time.Duration
	AssertionTTL time.Duration
	JWKSCacheTTL time.Duration
	NonceTTL     time.Duration
	ReplayStore  string // see ParseReplayBackend
	ReplayPurge  time.Duration

	AdminUser     string
	AdminPassHash string // bcrypt; admin routes are disabled when empty

	LoginRatePerMin int
	EnableMetrics   bool

	DeploymentsFile string
}

func FromEnv() Config {
	mode := Mode(envOr("MODE", string(ModeProd)))
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000"),

		StateKeyPEM: stateKeyFromEnv(),

		EvaluationsServiceURL: envOr("EVALUATIONS_SERVICE_URL", "http://evaluations-service/"),
		TokensServiceURL:      envOr("TOKENS_SERVICE_URL", "http://users-service/"),

		HTTPTimeout:  envDuration("HTTP_TIMEOUT", 15*time.Second),
		AssertionTTL: envDuration("LTI_ASSERTION_TTL", 5*time.Minute),
		JWKSCacheTTL: envDuration("LTI_JWKS_CACHE_TTL", 10*time.Minute),
		NonceTTL:     envDuration("LTI_NONCE_TTL", 24*time.Hour),
		ReplayStore:  envOr("LTI_REPLAY_STORE", string(ReplaySQL)),
		ReplayPurge:  envDuration("LTI_REPLAY_PURGE_INTERVAL", time.Hour),

		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: os.Getenv("ADMIN_PASS_HASH"),

		LoginRatePerMin: envInt("LOGIN_RATE_PER_MIN", 120),
		EnableMetrics:   envBool("ENABLE_METRICS", true),

		DeploymentsFile: os.Getenv("LTI_DEPLOYMENTS_FILE"),
	}
}

// Development reports whether dev conveniences (console logs, ephemeral keys) apply.
func (c Config) Development() bool { return c.Mode == ModeDev }

// ParseReplayBackend maps LTI_REPLAY_STORE to a ReplayBackend.
func ParseReplayBackend(s string) (ReplayBackend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sql", "":
		return ReplaySQL, nil
	case "memory", "mem":
		return ReplayMemory, nil
	default:
		return "", fmt.Errorf("config: unsupported replay store: %s", s)
	}
}

// StateKey returns the key pair that signs state tokens.
func (c Config) StateKey() (*rsa.PrivateKey, error) {
	if c.StateKeyPEM != "" {
		k, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.StateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("config: state key: %w", err)
		}
		return k, nil
	}
	if !c.Development() {
		return nil, errors.New("config: STATE_PRIVATE_KEY or STATE_PRIVATE_KEY_FILE is required")
	}
	return rsa.GenerateKey(rand.Reader, 2048)
}

type deploymentsFile struct {
	Deployments []deployment.RegisterInput `yaml:"deployments"`
}

// LoadDeploymentsFile reads the tool deployments to register at startup.
func LoadDeploymentsFile(path string) ([]deployment.RegisterInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read deployments file: %w", err)
	}
	var f deploymentsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse deployments file %s: %w", path, err)
	}
	return f.Deployments, nil
}

func stateKeyFromEnv() string {
	if v := os.Getenv("STATE_PRIVATE_KEY"); v != "" {
		return v
	}
	if p := os.Getenv("STATE_PRIVATE_KEY_FILE"); p != "" {
		if b, err := os.ReadFile(p); err == nil {
			return string(b)
		}
	}
	return ""
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
