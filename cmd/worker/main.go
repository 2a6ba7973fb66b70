package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	internalworker "github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/worker"
)

type options struct {
	configFile string
	healthAddr string
	smsLog     bool
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:          "clinic-worker",
		Short:        "Relays outbox events to Redis and sweeps expired rows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&opts.healthAddr, "health-addr", ":8081", "address of the health and metrics endpoint")
	rootCmd.Flags().BoolVar(&opts.smsLog, "sms-log", false, "consume sms.send events and write them to the log instead of a gateway")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	workerLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Format == "console",
	}).With("component", "worker")
	log.Logger = workerLog.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics("clinic_worker", registry)
	store := postgres.NewStore(db, postgres.TxOptions{
		LockTimeout:      cfg.Database.LockTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, m)

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &workerLog.ZL)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	processor := worker.NewOutboxProcessor(
		store.Outbox(),
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
			MaxRetries:    cfg.Outbox.MaxRetries,
			Lease:         cfg.Outbox.Lease,
			ChannelPrefix: cfg.Outbox.ChannelPrefix,
		},
		workerLog,
		m,
	)
	cleanup := internalworker.NewCleanupWorker(store, internalworker.CleanupConfig{
		Interval:        cfg.OTP.SweepInterval,
		OutboxRetention: cfg.Outbox.Retention,
	}, workerLog)

	var dispatcher *internalworker.SMSDispatcher
	if opts.smsLog {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create sms logger: %w", err)
		}
		defer zl.Sync() //nolint:errcheck
		dispatcher = internalworker.NewSMSDispatcher(broker, notification.NewLogSender(zl.Named("sms")), cfg.Outbox.ChannelPrefix, workerLog, m)
	}

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	start(func() { processor.Start(ctx) })
	start(func() { cleanup.Start(ctx) })

	if dispatcher != nil {
		start(func() {
			if err := dispatcher.Start(ctx); err != nil {
				workerLog.Error(err, "sms dispatcher stopped")
			}
		})
	}

	srv := healthServer(opts.healthAddr, registry, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		return broker.Ping(ctx)
	})
	start(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			workerLog.Error(err, "health check server failed")
		}
	})

	<-ctx.Done()
	workerLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerLog.Error(err, "health check server shutdown failed")
	}

	wg.Wait()
	return nil
}

func healthServer(addr string, registry *prometheus.Registry, ready func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
