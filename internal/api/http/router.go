// internal/api/http/router.go
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/auth/jwks"
	authmw "github.com/mind-engage/mindengage-lti-tool/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// RouterConfig wires the HTTP surface. Admin routes are mounted only when
// AdminPassHash is set; /metrics only when Metrics is non-nil.
type RouterConfig struct {
	Launcher        Launcher
	Deployments     *deployment.Service
	CORSOrigins     []string
	AdminUser       string
	AdminPassHash   string
	LoginRatePerMin int
	Metrics         http.Handler
	Ready           func(ctx context.Context) error
	RequestTimeout  time.Duration
	Log             *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				log.Warn("not ready", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Deployments != nil {
		r.Get("/.well-known/jwks.json", jwks.Handler(cfg.Deployments, log))
	}

	r.Route("/lti/app", func(ar chi.Router) {
		limiter := NewRateLimiter(cfg.LoginRatePerMin)
		ar.With(limiter.Middleware).Post("/login-initiation", LoginInitiationHandler(cfg.Launcher, log))
		ar.Post("/exam-selection", ExamSelectionHandler(cfg.Launcher, log))
		ar.Post("/exam-selected", ExamSelectedHandler(cfg.Launcher, log))
		ar.Post("/exam-taking", ExamTakingHandler(cfg.Launcher, log))
		ar.Put("/exam-scoring", ExamScoringHandler(cfg.Launcher, log))
	})

	if cfg.Deployments != nil && cfg.AdminPassHash != "" {
		r.Route("/lti/admin/tool-deployments", func(ad chi.Router) {
			ad.Use(authmw.BasicAuth("lti-admin", cfg.AdminUser, cfg.AdminPassHash, log))
			MountAdmin(ad, cfg.Deployments, log)
		})
	}
	return r
}
