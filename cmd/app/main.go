package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/infra/api"
	pg "elverra-membership/internal/infra/db/postgres"
	"elverra-membership/internal/infra/i18n"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
	"elverra-membership/internal/infra/payment"
	"elverra-membership/internal/infra/rabbitmq"
	red "elverra-membership/internal/infra/redis"
	"elverra-membership/internal/infra/sched"
	"elverra-membership/internal/infra/scheduler"
	"elverra-membership/internal/infra/security"
	"elverra-membership/internal/infra/worker"
	"elverra-membership/internal/usecase"
)

// set by -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs, noop gateway allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting elverra membership service")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go observePool(ctx, pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Events ----
	var events adapter.EventPublisher
	if cfg.Events.AMQPURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.Events.AMQPURL, cfg.Events.Exchange, logging.Component(logger, "EventProducer"))
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq")
		}
		defer producer.Close()
		events = producer
	} else {
		logger.Warn().Msg("events.amqp_url not set; domain events are only logged")
		events = rabbitmq.NewNoopPublisher(logging.Component(logger, "EventProducer"))
	}

	// ---- Security ----
	codec, err := security.NewCardCodec(cfg.Security.CardSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("card codec")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	cardRepo := pg.NewCardRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	productRepo := pg.NewProductRepoCacheDecorator(pg.NewProductRepo(pool), redisClient, cfg.Redis.TTL)
	accountRepo := pg.NewTokenAccountRepo(pool)
	tokenTxRepo := pg.NewTokenTransactionRepo(pool)

	// ---- Gateways ----
	if cfg.Payment.EnableNoop && !cfg.Runtime.Dev {
		logger.Fatal().Msg("payment.enable_noop is only allowed with -dev")
	}
	gateways := payment.NewRegistryFromConfig(cfg.Payment)
	logger.Info().Strs("gateways", gateways.Names()).Msg("payment gateways ready")

	settings := usecase.PaymentSettings{
		Currency:  cfg.Payment.Currency,
		ReturnURL: cfg.Payment.ReturnURL,
		NotifyURL: func(gw, paymentID string) string {
			return payment.NotifyURL(cfg.Server.PublicBaseURL, gw, paymentID)
		},
	}

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(subRepo, cardRepo, productRepo, pg.NewAdvisoryLocker(), tm, codec, events,
		logging.Component(logger, "SubscriptionUseCase"))
	productUC := usecase.NewProductUseCase(productRepo, subRepo, tm, logging.Component(logger, "ProductUseCase"))
	tokenUC := usecase.NewTokenUseCase(accountRepo, tokenTxRepo, subRepo, payRepo, gateways, tm, events, settings,
		logging.Component(logger, "TokenUseCase"))
	paymentUC := usecase.NewPaymentUseCase(payRepo, subRepo, productRepo, gateways, subUC, tokenUC,
		red.NewLocker(redisClient), cfg.Payment.VerifyLockTTL, events, settings,
		logging.Component(logger, "PaymentUseCase"))

	// ---- HTTP ----
	bundle, err := i18n.NewDefaultBundle()
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	apiServer := api.NewServer(subUC, paymentUC, tokenUC, productUC, gateways,
		red.NewRateLimiter(redisClient),
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		bundle, promhttp.Handler(),
		api.Options{
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			RequestTimeout:  cfg.Server.RequestTimeout,
			VerifyRateLimit: cfg.Server.VerifyRateLimit,
		},
		logging.Component(logger, "API"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	// ---- Background jobs ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)

	jobs := scheduler.NewScheduler(0, logger)
	reaper := sched.NewStalePendingReaper(subUC, cfg.Subscriptions.PendingTTL, logger)
	mustRegister(logger, jobs, cfg.Scheduler.ReconcileCron,
		sched.NewPaymentReconciler(paymentUC, workers, cfg.Scheduler.ReconcileOlderThan, cfg.Scheduler.ReconcileBatch, logger))
	mustRegister(logger, jobs, cfg.Scheduler.CardExpiryCron, sched.NewCardExpiryWorker(subUC, logger))
	if reaper.Enabled() {
		mustRegister(logger, jobs, cfg.Scheduler.StalePendingCron, reaper)
	}
	jobs.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	jobs.Stop(shutdownCtx)
	workers.Stop()
	logger.Info().Msg("bye")
}

func mustRegister(logger *zerolog.Logger, s *scheduler.Scheduler, spec string, job scheduler.Job) {
	if err := s.Register(spec, job); err != nil {
		logger.Fatal().Err(err).Msg("scheduler")
	}
}

// observePool exports pool gauges every 15s until ctx ends.
func observePool(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.ObservePool(pool.Stat())
		}
	}
}
