package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/tableside/internal/dispatch"
	healthcheck "github.com/vladislavdragonenkov/tableside/internal/health"
	"github.com/vladislavdragonenkov/tableside/internal/service/idempotency"
	"github.com/vladislavdragonenkov/tableside/internal/service/outbox"
	"github.com/vladislavdragonenkov/tableside/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/tableside/internal/version"
)

const defaultShutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, gRPC health, метрики и фоновые воркеры и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	deps := NewDependencies(cfg, logger)

	// Kafka опциональна: без брокеров события пишутся в лог.
	producer, _ := initKafkaProducer(cfg.Brokers(), logger)
	publisher, dlqPublisher := outboxPublishers(producer, cfg.KafkaTopic, logger)

	// Воркеры живут дольше серверов, чтобы дообработать уже принятые запросы.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pool := dispatch.NewPool(
		dispatch.WithWorkers(cfg.Workers),
		dispatch.WithLogger(logger.WithField("component", "dispatch-pool")),
	)
	pool.Start(workerCtx)

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.Dedup,
		idempotency.WithLogger(logger.WithField("component", "dedup-cleanup-worker")),
		idempotency.WithInterval(cfg.SweepInterval),
		idempotency.WithBatchSize(cfg.SweepBatchSize),
		idempotency.WithDeletedOrders(deps.Repo, cfg.DedupTTL),
		idempotency.WithOnCycle(deps.Service.RefreshGauges),
	)
	outboxWorker := outbox.NewWorker(
		deps.OutboxRepo,
		publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		cleanupWorker.Run(workerCtx)
	}()
	go func() {
		defer background.Done()
		outboxWorker.Run(workerCtx)
	}()

	healthHandler := healthcheck.NewHandler(version.Get())
	healthHandler.RegisterChecker("order-store", healthcheck.NewStoreChecker(func() healthcheck.StoreSnapshot {
		stats := deps.Service.Stats()
		return healthcheck.StoreSnapshot{
			OpenOrders:    stats.Store.Open,
			DeletedOrders: stats.Store.Deleted,
			DedupEntries:  stats.DedupEntries,
		}
	}, cfg.MaxDedupEntries, cfg.MaxDeletedBacklog))
	healthHandler.RegisterChecker("order-events", healthcheck.NewOutboxChecker(deps.OutboxRepo.Stats, outboxStaleAfter(cfg)))

	// Метрики и пробы живут до конца остановки, чтобы /readyz успел показать draining.
	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	grpcServer, grpcHealth := newGRPCServer(logger)

	stopAll := func() {
		pool.Stop()
		stopWorkers()
		background.Wait()
		closeKafka(producer, logger)
		shutdownHTTP(metricsSrv, logger)
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopAll()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		stopAll()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	apiSrv := &http.Server{
		Handler:           newAPIHandler(deps, pool, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		errCh <- apiSrv.Serve(apiLis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	healthHandler.SetDraining(true)
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownHTTPWithTimeout(apiSrv, logger, shutdownTimeout)
	stopGRPC(grpcServer, logger, shutdownTimeout)

	// Дописываем накопленные события, пока producer ещё открыт.
	pool.Stop()
	stopWorkers()
	background.Wait()
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), shutdownTimeout)
	outboxWorker.ProcessOnce(flushCtx)
	cancelFlush()

	closeKafka(producer, logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// newAPIHandler собирает REST API заказов поверх пула воркеров.
func newAPIHandler(deps *Dependencies, pool *dispatch.Pool, logger *log.Entry) http.Handler {
	handler := httpapi.NewHandler(deps.Service, pool, logger.WithField("component", "http-api"))
	return httpapi.NewRouter(handler)
}

// newGRPCServer создаёт gRPC сервер со стандартным health-сервисом и reflection.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := registerGRPCMetrics(logger)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Reflection нужен grpcurl и grpc_health_probe
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

func stopGRPC(srv *grpc.Server, logger *log.Entry, timeout time.Duration) {
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// outboxStaleAfter — сколько событие может ждать публикации, прежде чем проверка станет degraded.
func outboxStaleAfter(cfg Config) time.Duration {
	return max(10*cfg.OutboxPollInterval, time.Minute)
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы.
// Останавливается только через shutdownHTTP.
func startMetricsServer(addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	shutdownHTTPWithTimeout(srv, logger, defaultShutdownTimeout)
}

func shutdownHTTPWithTimeout(srv *http.Server, logger *log.Entry, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
