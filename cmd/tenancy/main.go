package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/finchly/tenancy/pkg/api"
	"github.com/finchly/tenancy/pkg/config"
	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/identity"
	"github.com/finchly/tenancy/pkg/mailer"
	"github.com/finchly/tenancy/pkg/middleware"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
	"github.com/finchly/tenancy/pkg/storage/postgres"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting tenancy service")

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := orgs.RunMigrations(context.Background(), db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, public endpoints run unthrottled")
		}
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	orgService := orgs.NewPostgresService(db, orgs.WithInvitationTTL(cfg.Invitations.TTL))
	userStore := identity.NewPostgresStore(db)
	authenticator := identity.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret))

	prefs := middleware.NewPreferenceCookie(
		cfg.Auth.PreferenceCookieName,
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.PreferenceCookieTTL,
		cfg.Auth.CookieSecure,
	)

	var invitationMailer mailer.Mailer
	if cfg.Mail.SMTPAddr != "" {
		invitationMailer = mailer.NewSMTPMailer(cfg.Mail.SMTPAddr, cfg.Mail.From, cfg.Server.BaseURL, cfg.Mail.Username, cfg.Mail.Password)
	} else {
		invitationMailer = mailer.NewLogMailer(logger)
		logger.Info("no SMTP configured, invitation email will be logged")
	}

	server := api.NewServer(orgService, userStore, prefs, api.Options{
		Mailer:  invitationMailer,
		Metrics: metrics,
		Logger:  logger,
	})

	session := middleware.NewSessionMiddleware(authenticator, orgService, prefs, metrics)

	var publicLimit *middleware.DistributedRateLimiter
	if redisClient != nil {
		publicLimit = middleware.NewDistributedRateLimiter(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Invitations.PublicRateLimit,
			WindowDuration:    time.Minute,
		}, "tenancy:ratelimit")
	}

	router := server.Router(session, publicLimit)
	if metrics != nil {
		// Inside the router so the route template is available as the
		// path label; outside, unmatched raw paths would blow up label
		// cardinality.
		router.Use(metrics.HTTPMiddleware)
	}

	stack := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		loggerInjector(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(1 << 20),
	}
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		stack = append(stack, httputil.CORSMiddleware(cfg.Server.CORSAllowedOrigins))
	}
	handler := httputil.Chain(stack...)(router)

	// Expired invitations flip to their terminal state on read; the
	// sweeper catches the ones nobody looks at.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Invitations.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := orgService.CleanupExpiredInvitations(ctx)
		if err != nil {
			logger.WithError(err).Error("invitation sweep failed")
			return
		}
		if n > 0 {
			if metrics != nil {
				metrics.InvitationsExpiredTotal.Add(float64(n))
			}
			logger.WithField("count", n).Info("expired invitations swept")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule invitation sweep")
		os.Exit(1)
	}
	sweeper.Start()

	// Health and metrics on a separate port so probes and scrapes never
	// contend with API traffic.
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	if metrics != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.ObserveDBStats(db.Stats())
			}
		}()
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("tenancy API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-sweeper.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
	logger.Info("shutdown complete")
}

// loggerInjector seeds every request context with the process logger so
// FromContext picks it up downstream.
func loggerInjector(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	}
}
