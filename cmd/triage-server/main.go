package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/events"
	"github.com/ehr/triage/internal/platform/middleware"
	"github.com/ehr/triage/internal/platform/reporting"
	"github.com/ehr/triage/internal/platform/rl"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Patient triage scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(qtableCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// infra holds the optional backing services. Each field is nil when the
// matching setting is empty.
type infra struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (i *infra) Close() {
	if i.redis != nil {
		i.redis.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func connect(ctx context.Context, cfg *config.Config) (*infra, error) {
	i := &infra{}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		i.pool = pool
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			i.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		i.redis = redis.NewClient(opts)
	}
	return i, nil
}

// qtableStore picks the Q-table backend named by QTABLE_BACKEND.
func qtableStore(cfg *config.Config, i *infra) (rl.Store, error) {
	switch cfg.QTableBackend {
	case config.QTableBackendPostgres:
		if i.pool == nil {
			return nil, fmt.Errorf("postgres q-table backend requires DATABASE_URL")
		}
		return rl.NewPGStore(i.pool), nil
	case config.QTableBackendRedis:
		if i.redis == nil {
			return nil, fmt.Errorf("redis q-table backend requires REDIS_URL")
		}
		return rl.NewRedisStore(i.redis, cfg.QTableRedisKey), nil
	default:
		return rl.NewFileStore(cfg.QTablePath), nil
	}
}

func agentConfig(cfg *config.Config) rl.Config {
	return rl.Config{
		LearningRate: cfg.RLLearningRate,
		Discount:     cfg.RLDiscount,
		Epsilon:      cfg.RLEpsilon,
		EpsilonDecay: cfg.RLEpsilonDecay,
		MinEpsilon:   cfg.RLMinEpsilon,
	}
}

func runServer() error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	authMode := cfg.ResolvedAuthMode()
	if authMode == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is enabled, every request runs as admin")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Backing services
	backends, err := connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to backing services")
	}
	defer backends.Close()

	var feedbackRepo triage.FeedbackRepository
	if backends.pool != nil {
		feedbackRepo = triage.NewFeedbackRepoPG(backends.pool)
		logger.Info().Msg("connected to database, feedback is durable")
	} else {
		feedbackRepo = triage.NewMemoryFeedbackRepo()
		logger.Warn().Msg("DATABASE_URL not set, feedback is kept in memory")
	}

	// Reinforcement learning
	store, err := qtableStore(cfg, backends)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure q-table store")
	}
	var agentOpts []rl.Option
	if cfg.RLSeed != 0 {
		agentOpts = append(agentOpts, rl.WithSeed(cfg.RLSeed))
	}
	agent := rl.NewAgent(agentConfig(cfg), agentOpts...)
	rl.LoadInto(ctx, agent, store, logger)

	bindings := rl.NewBindings(cfg.RLBindingTTL)
	go bindings.Run(ctx, time.Minute, time.Now)

	persister := rl.NewPersister(store, logger)
	persister.Start(ctx)

	// Triage
	queue := triage.NewQueue(agent, bindings, triage.WithQueueLogger(logger))
	feedback := triage.NewFeedbackStore(feedbackRepo, queue, agent, bindings,
		triage.WithPersister(persister, cfg.FeedbackSaveEvery),
		triage.WithFeedbackLogger(logger),
	)

	var clf triage.Classifier
	if cfg.ClassifierURL != "" {
		clf = triage.NewHTTPClassifier(triage.HTTPClassifierConfig{
			BaseURL: cfg.ClassifierURL,
			Timeout: cfg.ClassifierTimeout,
			Retries: cfg.ClassifierRetries,
		})
		logger.Info().Str("url", cfg.ClassifierURL).Msg("using remote classifier")
	} else {
		clf = triage.NewRuleClassifier()
		logger.Info().Msg("CLASSIFIER_URL not set, using rule-based classifier")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger), logger)
		logger.Info().Str("topic", cfg.KafkaTopic).Msg("publishing triage events to kafka")
	}

	svc := triage.NewService(clf, queue, feedback, agent,
		triage.WithPublisher(publisher),
		triage.WithServiceLogger(logger),
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, middleware.PatientIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M"))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if backends.pool != nil {
		e.GET("/health/db", db.HealthHandler(backends.pool))
	} else {
		e.GET("/health/db", db.HealthHandler(nil))
	}

	// API
	apiV1 := e.Group("/api/v1")
	if authMode == config.AuthModeDevelopment {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}
	apiV1.Use(middleware.Audit(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.NewRateLimiter(rateLimitCfg)
	go limiter.Run(ctx, 5*time.Minute)
	apiV1.Use(limiter.Middleware())
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	triage.NewHandler(svc).RegisterRoutes(apiV1)
	reporting.NewHandler(triage.NewReportSource(svc)).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	stop()
	persister.Stop()
	if err := persister.SaveNow(agent.Snapshot()); err != nil {
		logger.Error().Err(err).Msg("final q-table save failed")
	}
	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("event publisher close failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
