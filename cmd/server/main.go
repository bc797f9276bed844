package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"limscore/internal/capability"
	"limscore/internal/delivery"
	"limscore/internal/notification"
	"limscore/internal/platform/config"
	"limscore/internal/platform/httpserver"
	"limscore/internal/platform/logger"
	platformmetrics "limscore/internal/platform/metrics"
	"limscore/internal/platform/middleware"
	"limscore/internal/platform/postgres"
	platformredis "limscore/internal/platform/redis"
	"limscore/internal/qc"
	"limscore/internal/refrange"
	resulthandler "limscore/internal/result/handler"
	resultmetrics "limscore/internal/result/metrics"
	resultservice "limscore/internal/result/service"
	resultstore "limscore/internal/result/store"
	"limscore/pkg/platform/audit"
	auditmemory "limscore/pkg/platform/audit/store/memory"
	auditpostgres "limscore/pkg/platform/audit/store/postgres"
)

// main wires the lifecycle engine and keeps the server lifecycle small.
// Business logic lives in the internal service packages. Missing
// infrastructure config selects in-process fallbacks so the binary runs
// standalone.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		resultStore resultservice.ResultStore
		auditStore  audit.Store
		txOpt       resultservice.Option
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		resultStore = resultstore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		txOpt = resultservice.WithStoreTx(resultservice.NewPostgresTx(db))
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		resultStore = resultstore.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
		txOpt = func(*resultservice.Service) {}
	}

	var checker qc.Checker = qc.NewStaticChecker()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checker = qc.NewCachedChecker(checker, redisClient.Client, cfg.QCCacheTTL)
	}

	var notifier notification.Notifier = notification.NewMemoryNotifier()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafkaNotifier.Close(flushCtx); err != nil {
				log.Error("kafka producer close failed", "error", err)
			}
		}()
		notifier = kafkaNotifier
	}

	trail := audit.NewTrail(auditStore, audit.WithLogger(log))
	svc := resultservice.New(resultStore, trail, refrange.NewInMemorySource(), checker,
		resultservice.WithLogger(log),
		resultservice.WithMetrics(resultmetrics.New()),
		resultservice.WithDeliverer(delivery.NewLogDeliverer(log)),
		resultservice.WithNotifier(notifier),
		txOpt,
	)

	httpMetrics := platformmetrics.New()
	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(httpMetrics))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.Identity(log))
		resulthandler.New(svc, capability.NewGate(), trail, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting limscore", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("limscore stopped")
}
