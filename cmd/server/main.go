package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"onboarding-gateway/internal/audit"
	auditstore "onboarding-gateway/internal/audit/store"
	jwttoken "onboarding-gateway/internal/jwt_token"
	"onboarding-gateway/internal/kyc"
	kycmetrics "onboarding-gateway/internal/kyc/metrics"
	kycstore "onboarding-gateway/internal/kyc/store"
	"onboarding-gateway/internal/license"
	licensemetrics "onboarding-gateway/internal/license/metrics"
	"onboarding-gateway/internal/license/storage"
	licensestore "onboarding-gateway/internal/license/store"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/events"
	onboardinghandler "onboarding-gateway/internal/onboarding/handler"
	onboardingmetrics "onboarding-gateway/internal/onboarding/metrics"
	onboardingstore "onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/platform/config"
	"onboarding-gateway/internal/platform/httpserver"
	"onboarding-gateway/internal/platform/logger"
	"onboarding-gateway/internal/platform/metrics"
	"onboarding-gateway/internal/platform/postgres"
	"onboarding-gateway/internal/platform/redis"
	"onboarding-gateway/internal/profile"
	profilestore "onboarding-gateway/internal/profile/store"
	"onboarding-gateway/internal/providers"
	"onboarding-gateway/internal/ratelimit"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/circuit"
	"onboarding-gateway/pkg/platform/httputil"
	authmw "onboarding-gateway/pkg/platform/middleware/auth"
	"onboarding-gateway/pkg/platform/middleware/metadata"
	"onboarding-gateway/pkg/platform/middleware/request"
	"onboarding-gateway/pkg/platform/middleware/requesttime"
	"onboarding-gateway/pkg/platform/middleware/webhook"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("onboarding-gateway stopped", "error", err)
		os.Exit(1)
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]healthChecker{}

	// identity session markers
	var (
		kycSessions kyc.SessionStore
		completions onboarding.CompletionStore
		limits      ratelimit.Store
		purgers     []onboarding.Purger
	)
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		kycSessions = kycstore.NewRedis(redisClient.Client)
		completions = onboardingstore.NewRedis(redisClient.Client)
		limits = ratelimit.NewRedis(redisClient.Client)
		checks["redis"] = redisClient
	} else {
		mem := kycstore.NewInMemory()
		memLimits := ratelimit.NewInMemory()
		kycSessions, limits = mem, memLimits
		completions = onboardingstore.NewInMemory()
		purgers = append(purgers, mem, memLimits)
		log.Warn("REDIS_URL not set, identity session markers and rate limits kept in memory")
	}

	// license submissions and profiles
	var (
		submissions license.SubmissionStore
		profiles    profile.Store
		auditTrail  audit.Store
	)
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return err
		}
		submissions = licensestore.NewPostgres(db)
		profiles = profilestore.NewPostgres(db)
		auditTrail = auditstore.NewPostgres(db)
		checks["postgres"] = pingFunc(db.PingContext)
	} else {
		submissions = licensestore.NewInMemory()
		profiles = profilestore.NewInMemory()
		auditTrail = auditstore.NewInMemory()
		log.Warn("DATABASE_URL not set, submissions, profiles and audit trail kept in memory")
	}

	var documents license.DocumentStorage
	if cfg.S3.Bucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		documents = s3
		checks["s3"] = s3
	} else {
		documents = storage.NewInMemory()
		log.Warn("LICENSE_BUCKET not set, license documents kept in memory")
	}

	// upstream collaborators
	verifier := kyc.NewHTTPVerifier("kyc", cfg.KYC.BaseURL, cfg.KYC.APIKey, cfg.KYC.Timeout,
		kyc.WithBreaker(circuit.New("kyc", circuit.WithFailureThreshold(cfg.KYC.FailureThreshold))),
		kyc.WithVerifierLogger(log),
	)
	reviewer := license.NewHTTPReviewer("license-review", cfg.Review.BaseURL, cfg.Review.APIKey, cfg.Review.Timeout,
		license.WithReviewerBreaker(circuit.New("license-review", circuit.WithFailureThreshold(cfg.Review.FailureThreshold))),
		license.WithReviewerLogger(log),
	)
	registry := providers.NewRegistry()
	if err := registry.Register(verifier); err != nil {
		return err
	}
	if err := registry.Register(reviewer); err != nil {
		return err
	}

	recorder := audit.NewRecorder(auditTrail, audit.WithLogger(log))
	defer recorder.Close()

	onboardingMetrics := onboardingmetrics.New()
	var svc *onboarding.Service
	hub := events.NewHub(
		events.WithHubLogger(log),
		events.WithHubMetrics(onboardingMetrics),
		events.WithAllowedOrigins(cfg.AllowedOrigins),
		// the last websocket client leaving tears the session down
		events.OnLastDisconnect(func(providerID id.ProviderID) { svc.Release(providerID) }),
	)

	svcOpts := []onboarding.Option{
		onboarding.WithLogger(log),
		onboarding.WithMetrics(onboardingMetrics),
		onboarding.WithKYCMetrics(kycmetrics.New()),
		onboarding.WithLicenseMetrics(licensemetrics.New()),
		onboarding.WithNotifier(hub),
		onboarding.WithCompletions(completions),
		onboarding.WithAuditor(recorder),
		onboarding.WithPollInterval(cfg.PollInterval),
		onboarding.WithIdentityReturnURL(cfg.IdentityReturnURL()),
		onboarding.WithIdleTTL(cfg.IdleSessionTTL),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, events.WithKafkaLogger(log))
		if err != nil {
			return err
		}
		defer publisher.Close()
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure completion topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		svcOpts = append(svcOpts, onboarding.WithPublisher(publisher))
		checks["kafka"] = publisher
	}

	svc = onboarding.NewService(onboarding.Dependencies{
		Verifier:    verifier,
		KYCSessions: kycSessions,
		Reviewer:    reviewer,
		Documents:   documents,
		Submissions: submissions,
		Profiles:    profiles,
	}, svcOpts...)
	defer svc.Close()

	janitorOpts := []onboarding.JanitorOption{onboarding.WithJanitorLogger(log)}
	for _, p := range purgers {
		janitorOpts = append(janitorOpts, onboarding.WithPurger(p))
	}
	janitor := onboarding.NewJanitor(svc, janitorOpts...)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	// HTTP
	tokens := jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	httpMetrics := metrics.New()
	limiter := ratelimit.New(limits, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithDecisionCounter(ratelimit.NewDecisionCounter()),
		ratelimit.WithPolicy(ratelimit.ClassIdentitySession, ratelimit.Policy{Limit: cfg.RateLimit.IdentitySessionsPerHour, Window: time.Hour}),
		ratelimit.WithPolicy(ratelimit.ClassLicenseUpload, ratelimit.Policy{Limit: cfg.RateLimit.LicenseUploadsPerHour, Window: time.Hour}),
	)
	handler := onboardinghandler.New(svc, hub, log, cfg.OnboardingRoute, onboardinghandler.WithRateLimiter(limiter))

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpMetrics.Middleware)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", healthHandler(checks, registry))
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(tokens, log))
		handler.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(webhook.RequireSharedSecret(cfg.WebhookSecret, log))
		handler.RegisterWebhooks(r)
	})

	log.Info("starting onboarding-gateway", "addr", cfg.Addr)
	return httpserver.ListenAndServe(ctx, httpserver.New(cfg.Addr, r), log, 10*time.Second)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Health(ctx context.Context) error { return f(ctx) }

// healthHandler reports infrastructure and upstream breaker state. An open
// upstream breaker degrades the status without failing the probe.
func healthHandler(checks map[string]healthChecker, registry *providers.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		components := map[string]string{}
		for name, c := range checks {
			if err := c.Health(ctx); err != nil {
				components[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		for name, err := range registry.Health(ctx) {
			if err != nil {
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":     http.StatusText(status),
			"components": components,
		})
	}
}
