package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/config"
	"github.com/carepoint/portal/internal/domain/appointment"
	"github.com/carepoint/portal/internal/domain/dashboard"
	"github.com/carepoint/portal/internal/domain/identity"
	"github.com/carepoint/portal/internal/domain/prescription"
	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/domain/symptom"
	"github.com/carepoint/portal/internal/platform/auth"
	"github.com/carepoint/portal/internal/platform/db"
	"github.com/carepoint/portal/internal/platform/events"
	"github.com/carepoint/portal/internal/platform/metrics"
	"github.com/carepoint/portal/internal/platform/middleware"
	"github.com/carepoint/portal/internal/platform/websocket"
)

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer backend.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	publishers := events.Multi{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.EventsExchange).Msg("publishing domain events")
	}

	app, err := newApp(cfg, backend, publishers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Start server
	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting portal server")
		if err := app.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go app.sweepSessions(sweepCtx, time.Minute)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.flush(shutdownCtx)
	return app.echo.Shutdown(shutdownCtx)
}

// app is the wired server. It is built separately from runServer so tests
// can drive the full route table over the memory backend.
type app struct {
	echo         *echo.Echo
	metrics      *metrics.Metrics
	identity     *identity.Service
	sessions     *session.Registry
	appointments *appointment.Registry
	hub          *websocket.Hub
	logger       zerolog.Logger
}

func newApp(cfg *config.Config, backend *storeBackend, extra events.Multi, logger zerolog.Logger) (*app, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		key = make([]byte, 32)
		if _, err := crypto_rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; sessions will not survive a restart")
	}

	m := metrics.New()
	hub := websocket.NewHub(logger)
	publisher := append(events.Multi{events.NewLogPublisher(logger), events.NewHubPublisher(hub)}, extra...)

	catalog := appointment.NewStaticCatalog(appointment.DefaultDoctors()...)
	doctors := identity.DoctorCatalogFunc(func(ctx context.Context, id string) bool {
		_, ok := catalog.Doctor(ctx, id)
		return ok
	})

	tokens := auth.NewTokenIssuer(key, cfg.AuthIssuer, cfg.SessionTTL)
	idSvc := identity.NewService(backend.users, identity.NewSessionStoreKV(backend.kv), tokens, doctors, logger)
	sessions := session.NewRegistry(idSvc, cfg.AuthLookupTimeout, logger)
	idSvc.SetNotifier(sessions)
	gate := session.NewGate(idSvc, sessions, cfg.AuthLookupTimeout, func(d session.Decision) {
		m.GateDecision(string(d.Kind))
	})

	appointments := appointment.NewRegistry(appointment.Options{
		Repo:      appointment.NewRepository(backend.kv),
		Catalog:   catalog,
		Publisher: publisher,
		Recorder:  m,
		Logger:    logger,
		Seed:      cfg.SeedAppointments,
	})

	var symptomBackend symptom.Backend
	if cfg.SymptomBackendURL != "" {
		symptomBackend = symptom.NewHTTPBackend(cfg.SymptomBackendURL, cfg.SymptomTimeout, nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	rlCfg := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rlCfg.RequestsPerSecond <= 0 {
		rlCfg = middleware.DefaultRateLimitConfig()
	}
	limit := middleware.RateLimit(middleware.NewRateLimiter(rlCfg))

	e.GET("/health", db.HealthHandler(backend.checks))
	e.GET("/metrics", m.Handler())

	api := e.Group("/api/v1")
	patient := api.Group("/patient", gate.Require(session.RolePatient))
	doctor := api.Group("/doctor", gate.Require(session.RoleDoctor))

	identity.NewHandler(idSvc, gate, cfg.AuthLookupTimeout).RegisterRoutes(api, limit)
	session.NewHandler(gate, hub).RegisterRoutes(api)
	appointment.NewHandler(appointments, idSvc, time.Now).RegisterRoutes(patient, doctor)
	dashboard.NewHandler(idSvc, appointments, time.Now).RegisterRoutes(patient, doctor)
	prescription.NewHandler(prescription.NewService(prescription.NewRepository(backend.kv), publisher, logger)).RegisterRoutes(doctor)
	symptom.NewHandler(symptom.NewService(symptomBackend, m, logger)).RegisterRoutes(patient)

	return &app{
		echo:         e,
		metrics:      m,
		identity:     idSvc,
		sessions:     sessions,
		appointments: appointments,
		hub:          hub,
		logger:       logger,
	}, nil
}

// sweepSessions drops expired session holders until ctx ends. Sign-ins
// also sweep, so this only matters for a server that has gone quiet.
func (a *app) sweepSessions(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sessions.Sweep()
		}
	}
}

// flush retries writes that failed while the server was running.
func (a *app) flush(ctx context.Context) {
	for _, err := range a.appointments.FlushAll(ctx) {
		a.logger.Error().Err(err).Msg("unsaved appointment changes lost on shutdown")
	}
}
