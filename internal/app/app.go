// Package app собирает хранилище, сервисы, Kafka и серверы в один процесс.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/observability"
	httpsvc "github.com/vladislavdragonenkov/storefront/internal/service/http"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/rediscache"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	serviceName      = "storefront"
	shutdownTimeout  = 5 * time.Second
	maxOutboxLagging = 5 * time.Minute
)

// Run запускает HTTP API, gRPC health, метрики и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       true,
		ServiceName:    serviceName,
		ServiceVersion: version.Version(),
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()
	logger.WithField("driver", cfg.StorageDriver).Info("storage initialized")

	orderMetrics := metrics.NewOrderMetrics()

	// Kafka необязательна: без неё outbox публикуется в лог.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	svc, err := buildServices(cfg, deps, producer, orderMetrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if svc.redis != nil {
			_ = svc.redis.Close()
		}
	}()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	outboxDone := startOutboxWorker(workerCtx, cfg, deps.outboxRepo, producer, logger)
	cleanupDone := startCleanupWorker(workerCtx, cfg, deps.idempotencyRepo, logger)
	defer func() {
		shutdownOutboxWorker(cancelWorkers, outboxDone, logger)
		<-cleanupDone
	}()

	var consumer *kafka.Consumer
	if cfg.NotifyConsumer && producer != nil {
		consumer, err = startNotificationConsumer(workerCtx, cfg.KafkaBrokers, producer, notify.NewLogEmailSender(logger.WithField("component", "email")), logger)
		if err != nil {
			logger.WithError(err).Warn("notification consumer is disabled")
		}
	}
	defer stopConsumer(consumer, logger)

	healthHandler := newHealthHandler(deps, svc)

	apiServer, err := httpsvc.NewServer(httpsvc.Dependencies{
		Placement:      svc.placement,
		Lifecycle:      svc.lifecycle,
		Stats:          svc.stats,
		Orders:         deps.repo,
		Timeline:       deps.timelineRepo,
		Configs:        deps.configs,
		Catalog:        deps.catalog,
		Idempotency:    svc.guard,
		Logger:         logger.WithField("component", "http"),
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	apiSrv := &http.Server{Handler: apiServer.Routes(), ReadHeaderTimeout: 5 * time.Second}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer, grpcHealth := newGRPCServer(logger)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed")
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	shutdownPlacement(svc, logger)

	return runErr
}

func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	publisher, dlq := outboxPublishers(producer, logger)
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

func startCleanupWorker(ctx context.Context, cfg Config, repo domain.IdempotencyRepository, logger *log.Entry) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(repo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// newHealthHandler регистрирует проверки: хранилище критично, кеш и outbox нет.
func newHealthHandler(deps *runtimeDeps, svc *services) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.Version())
	h.RegisterChecker("storage", deps.storageChecker)
	if svc != nil && svc.redis != nil {
		h.RegisterOptional("redis", healthcheck.CheckFunc(rediscache.Ping(svc.redis)))
	}
	h.RegisterOptional("outbox", healthcheck.CheckFunc(func(ctx context.Context) error {
		stats, err := deps.outboxRepo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > 0 && time.Since(stats.OldestPendingAt) > maxOutboxLagging {
			return fmt.Errorf("%d outbox events pending since %s", stats.PendingCount, stats.OldestPendingAt.Format(time.RFC3339))
		}
		return nil
	}))
	return h
}

// newGRPCServer создаёт gRPC сервер со стандартным health и reflection.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает /metrics и health endpoints.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownPlacement дожидается отправки уведомлений.
func shutdownPlacement(svc *services, logger *log.Entry) {
	if svc == nil || svc.placement == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.placement.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("pending notifications were not delivered before shutdown")
	}
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего батча.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}
