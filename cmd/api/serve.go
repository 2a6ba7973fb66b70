package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwalitptl/clinic-api/internal/config"
	appointmenthandler "github.com/jwalitptl/clinic-api/internal/handler/appointment"
	authhandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	cataloghandler "github.com/jwalitptl/clinic-api/internal/handler/catalog"
	consultationhandler "github.com/jwalitptl/clinic-api/internal/handler/consultation"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	prometheushandler "github.com/jwalitptl/clinic-api/internal/handler/prometheus"
	staffhandler "github.com/jwalitptl/clinic-api/internal/handler/staff"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/router"
	"github.com/jwalitptl/clinic-api/internal/service/booking"
	"github.com/jwalitptl/clinic-api/internal/service/catalog"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	"github.com/jwalitptl/clinic-api/internal/service/identity"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/internal/service/staff"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

const metricsNamespace = "clinic"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// app holds what every command needs after loading configuration.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *sqlx.DB
	store    *postgres.Store
}

func (a *app) close() {
	a.db.Close()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Format == "console",
	})
	log.Logger = appLog.ZL

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(metricsNamespace, registry)

	store := postgres.NewStore(db, postgres.TxOptions{
		LockTimeout:      cfg.Database.LockTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, m)

	return &app{
		cfg:      cfg,
		log:      appLog,
		registry: registry,
		metrics:  m,
		db:       db,
		store:    store,
	}, nil
}

func newSender(cfg config.SMSConfig, outbox repository.OutboxRepository) (notification.Sender, error) {
	if cfg.Driver == config.SMSDriverLog {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create sms logger: %w", err)
		}
		return notification.NewLogSender(zl.Named("sms")), nil
	}
	return notification.NewOutboxSender(outbox), nil
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	sender, err := newSender(cfg.SMS, a.store.Outbox())
	if err != nil {
		return err
	}
	notifier := notification.NewService(sender, a.log, a.metrics)

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	tokens := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)

	identitySvc := identity.NewService(
		a.store,
		security.NewNumericCodeGenerator(cfg.OTP.Digits),
		hasher,
		tokens,
		notifier,
		a.log,
		a.metrics,
		identity.Config{
			OTPTTL:         cfg.OTP.TTL,
			ResendInterval: cfg.OTP.ResendInterval,
			MaxAttempts:    cfg.OTP.MaxAttempts,
		},
	)
	catalogSvc := catalog.NewService(a.store, a.metrics)
	bookingSvc := booking.NewService(a.store, identitySvc, notifier, a.log, a.metrics, booking.Config{
		MaxTokenAttempts: cfg.Booking.MaxTokenAttempts,
		Location:         loc,
	})
	consultationSvc := consultation.NewService(a.store, catalogSvc, a.log, a.metrics)
	staffSvc := staff.NewService(a.store, hasher, a.log, a.metrics)

	metricsH := prometheushandler.New(a.registry, metricsNamespace)
	healthH := health.NewHandler(map[string]health.Pinger{"database": a.store}, metricsH.Handler())

	r := router.NewRouter(a.log, middleware.NewAuthMiddleware(tokens), healthH, metricsH, []router.Handler{
		authhandler.NewHandler(identitySvc),
		appointmenthandler.NewHandler(bookingSvc),
		consultationhandler.NewHandler(consultationSvc),
		staffhandler.NewHandler(staffSvc),
		cataloghandler.NewHandler(catalogSvc),
	}, router.RouterConfig{
		Mode:      cfg.Server.Mode,
		RateLimit: cfg.RateLimit.RPS,
		RateBurst: cfg.RateLimit.Burst,
		CORSConfig: func() middleware.CORSConfig {
			c := middleware.DefaultCORSConfig()
			c.AllowOrigins = cfg.Server.CORSOrigins
			return c
		}(),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", "addr", srv.Addr, "sms_driver", cfg.SMS.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info("server exited properly")
	return nil
}
