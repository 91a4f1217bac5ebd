package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/rl1809/slot-inventory/internal/adapter/handler"
	"github.com/rl1809/slot-inventory/internal/adapter/messaging"
	"github.com/rl1809/slot-inventory/internal/adapter/storage"
	"github.com/rl1809/slot-inventory/internal/config"
	"github.com/rl1809/slot-inventory/internal/core/service"
	"github.com/rl1809/slot-inventory/internal/platform/observability"
	"github.com/rl1809/slot-inventory/internal/port"
)

const (
	healthInterval     = 5 * time.Second
	dropReportInterval = 30 * time.Second
	shutdownTimeout    = 5 * time.Second
)

func main() {
	logger := observability.NewLogger(config.ServiceName, zapcore.InfoLevel, false)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
	otelCfg := observability.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       true,
	}
	tp, shutdownTracing, err := observability.SetupTracing(ctx, otelCfg)
	if err != nil {
		logger.Error("failed to setup tracing, continuing without export", zap.Error(err))
	}
	shutdownLogging, err := observability.SetupLogging(ctx, otelCfg)
	if err != nil {
		logger.Error("failed to setup log export, continuing with console only", zap.Error(err))
	}
	logger = observability.NewLogger(config.ServiceName, zapcore.InfoLevel, otelCfg.Enabled() && err == nil)
	defer logger.Sync()

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}

	// Initialize Redis
	var (
		rdb  *redis.Client
		idem port.IdempotencyStore
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		idem = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Initialize event publisher
	var publisher port.EventPublisher = messaging.NewLogPublisher(logger)
	if cfg.KafkaBroker != "" {
		var tracerProvider trace.TracerProvider
		if tp != nil {
			tracerProvider = tp
		}
		kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, tracerProvider)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher = kafkaPublisher
		logger.Info("publishing events to kafka",
			zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.KafkaTopic))
	}

	// Initialize services
	feed := service.NewChangeFeed(cfg.EventQueueSize)
	slotService := service.NewSlotService(store, cfg.Limits, feed)
	itemService := service.NewItemService(store, cfg.Limits, feed)
	viewService := service.NewViewService(store)

	// Start publisher workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.PublisherWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			messaging.RunWorker(id, feed.Events(), publisher, logger)
		}(i)
	}
	logger.Info("started publisher workers", zap.Int("count", cfg.PublisherWorkers))

	reportCtx, stopReport := context.WithCancel(ctx)
	go reportDroppedEvents(reportCtx, feed, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	healthHandler := handler.NewGRPCHealthHandler(store, healthInterval, logger)
	healthHandler.Register(grpcServer)

	healthCtx, stopHealth := context.WithCancel(ctx)
	go healthHandler.Run(healthCtx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(slotService, itemService, viewService, store, idem, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	stopHealth()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// No more mutations can arrive: close the feed and let workers drain it
	stopReport()
	feed.Close()
	wg.Wait()
	if n := feed.Dropped(); n > 0 {
		logger.Warn("change events dropped since start", zap.Uint64("dropped", n))
	}
	if err := publisher.Close(); err != nil {
		logger.Error("failed to close publisher", zap.Error(err))
	}
	logger.Info("workers stopped")

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}
	if err := shutdownLogging(shutdownCtx); err != nil {
		logger.Error("failed to flush logs", zap.Error(err))
	}
	logger.Info("connections closed")
}

// reportDroppedEvents warns when the change feed discarded events since the last tick.
func reportDroppedEvents(ctx context.Context, feed *service.ChangeFeed, logger *zap.Logger) {
	ticker := time.NewTicker(dropReportInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := feed.Dropped()
			if n > last {
				logger.Warn("change feed full, events dropped",
					zap.Uint64("dropped", n-last), zap.Uint64("total", n))
				last = n
			}
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Store, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		store, err := storage.NewMemoryAdapter()
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return store, func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to mysql")

	store := storage.NewMySQLAdapter(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}
