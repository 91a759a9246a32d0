package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-lti-tool/internal/api/http"
	"github.com/mind-engage/mindengage-lti-tool/internal/auth"
	"github.com/mind-engage/mindengage-lti-tool/internal/config"
	"github.com/mind-engage/mindengage-lti-tool/internal/db"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/exam"
	"github.com/mind-engage/mindengage-lti-tool/internal/launch"
	"github.com/mind-engage/mindengage-lti-tool/internal/logging"
	"github.com/mind-engage/mindengage-lti-tool/internal/lti"
	"github.com/mind-engage/mindengage-lti-tool/internal/metrics"
	"github.com/mind-engage/mindengage-lti-tool/internal/replay"
	"github.com/mind-engage/mindengage-lti-tool/internal/taking"
)

func main() {
	cfg := config.FromEnv()

	log, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ltid stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	drv, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	dbh, err := db.Open(ctx, drv, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	// --- Metrics ---
	var rec metrics.Recorder = metrics.Nop{}
	var metricsHandler http.Handler
	if cfg.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.NewPrometheusRecorder(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// --- Stores and services ---
	deploymentStore := deployment.NewSQLStore(dbh)
	deployments := deployment.NewService(deploymentStore, log.Named("deployments"))
	if cfg.DeploymentsFile != "" {
		inputs, err := config.LoadDeploymentsFile(cfg.DeploymentsFile)
		if err != nil {
			return err
		}
		n, err := deployments.Seed(ctx, inputs)
		if err != nil {
			return err
		}
		log.Info("seeded tool deployments", zap.Int("registered", n), zap.Int("listed", len(inputs)))
	}

	stateKey, err := cfg.StateKey()
	if err != nil {
		return err
	}
	if cfg.StateKeyPEM == "" {
		log.Warn("using an ephemeral state key; launches in flight will not survive a restart")
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	backend, err := config.ParseReplayBackend(cfg.ReplayStore)
	if err != nil {
		return err
	}
	var nonces replay.Store
	switch backend {
	case config.ReplayMemory:
		log.Warn("using the in-memory nonce store; replay protection does not span instances or restarts")
		nonces = replay.NewMemoryStore(0)
	default:
		sqlNonces := replay.NewSQLStore(dbh)
		go purgeNonces(ctx, sqlNonces, cfg.ReplayPurge, log)
		nonces = sqlNonces
	}
	svc := launch.NewService(launch.Deps{
		Deployments: deploymentStore,
		States:      lti.NewStateCodec(stateKey),
		Validator:   lti.NewValidator(lti.NewJWKSResolver(hc, cfg.JWKSCacheTTL, log.Named("jwks"), rec)),
		Publisher:   lti.NewScorePublisher(hc, lti.NewTokenSource(hc, cfg.AssertionTTL), log.Named("ags"), rec),
		Exams:       exam.NewClient(cfg.EvaluationsServiceURL, hc),
		Tokens:      auth.NewTokensClient(cfg.TokensServiceURL, hc),
		Takings:     taking.NewSQLStore(dbh),
		Replay:      nonces,
		NonceTTL:    cfg.NonceTTL,
		Log:         log.Named("launch"),
		Metrics:     rec,
	})

	// --- Router ---
	router := api.NewRouter(api.RouterConfig{
		Launcher:        svc,
		Deployments:     deployments,
		CORSOrigins:     cfg.CORSOrigins,
		AdminUser:       cfg.AdminUser,
		AdminPassHash:   cfg.AdminPassHash,
		LoginRatePerMin: cfg.LoginRatePerMin,
		Metrics:         metricsHandler,
		Ready:           dbh.PingContext,
		Log:             log,
	})
	if cfg.AdminPassHash == "" {
		log.Warn("ADMIN_PASS_HASH is not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", string(cfg.Mode)), zap.String("db", string(drv)))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// purgeNonces deletes expired nonces every interval. A non-positive interval disables it.
func purgeNonces(ctx context.Context, s *replay.SQLStore, every time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge(ctx)
			if err != nil {
				log.Warn("purge used nonces", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("purged used nonces", zap.Int64("count", n))
			}
		}
	}
}
