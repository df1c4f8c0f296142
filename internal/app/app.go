package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/godilite/qa-review-engine/internal/config"
	handler "github.com/godilite/qa-review-engine/internal/grpc"
	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/observability"
	"github.com/godilite/qa-review-engine/internal/repository"
	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/scoring"
	"github.com/godilite/qa-review-engine/internal/service"
	"github.com/godilite/qa-review-engine/pkg/cache"
	dbbuilder "github.com/godilite/qa-review-engine/pkg/database"
	grpcsrv "github.com/godilite/qa-review-engine/pkg/grpc/server"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

const shutdownTimeout = 30 * time.Second

// seriesCache is satisfied by both the Redis and the in-process cache.
type seriesCache interface {
	handler.Cacher
	service.CacheInvalidator
}

type App struct {
	logger           *zap.Logger
	dbPool           *sql.DB
	cache            seriesCache
	reviews          *service.ReviewService
	snapshots        *service.DashboardSnapshotJob
	snapshotInterval time.Duration
	grpcServer       *grpcsrv.Server
	metricsServer    *http.Server
	otelShutdown     observability.Shutdown
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTel, Version)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	dbPool, err := dbbuilder.New(
		dbbuilder.WithDriver(cfg.DBDriver),
		dbbuilder.WithDataSource(cfg.DBPath),
		dbbuilder.WithLogger(logger),
		dbbuilder.WithMigrations(repository.Migrate),
	)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	logger.Info("Database pool initialized", zap.String("path", cfg.DBPath))

	var cacheClient seriesCache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.New(ctx,
			cache.WithAddress(cfg.RedisAddr),
			cache.WithPassword(cfg.RedisPassword),
			cache.WithDB(cfg.RedisDB),
		)
		if err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		cacheClient = redisCache
		logger.Info("Cache client initialized", zap.String("addr", cfg.RedisAddr))
	} else {
		cacheClient = cache.NewMemory(cfg.SeriesCacheTTL, 2*cfg.SeriesCacheTTL)
		logger.Warn("REDIS_ADDR is empty, using in-process series cache")
	}

	scorer, err := scoring.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model,
		scoring.WithRateLimit(cfg.LLM.RateRPS, cfg.LLM.RateBurst),
		scoring.WithDefaults(defaultModelSettings(cfg.LLM)),
		scoring.WithLogger(logger.Named("scoring")),
	)
	if err != nil {
		closeQuietly(cacheClient, dbPool)
		return nil, fmt.Errorf("scoring client init failed: %w", err)
	}

	reviewRepo := repository.NewReviewRepository(dbPool)
	metricRepo := repository.NewMetricRepository(dbPool)
	tenantRepo := repository.NewTenantRepository(dbPool)
	snapshotRepo := repository.NewSnapshotRepository(dbPool)

	writer := service.NewAggregationWriter(reviewRepo, metricRepo, service.SystemClock, logger.Named("aggregation"))
	trigger := service.NewAggregationTrigger(writer, cacheClient, 0, logger.Named("aggregation-trigger"))

	reviewService := service.NewReviewService(service.ReviewDeps{
		Reviews:       reviewRepo,
		Counter:       reviewRepo,
		Transcripts:   tenantRepo,
		Subscriptions: tenantRepo,
		Configs:       tenantRepo,
		Scorer:        scorer,
		Events:        trigger,
		Logger:        logger.Named("review-service"),
	}, service.ProcessorOptions{
		Workers:        cfg.ReviewWorkers,
		QueueSize:      cfg.ReviewQueueSize,
		ProcessTimeout: cfg.ReviewProcessTimeout,
	})

	seriesService := service.NewHybridQueryService(metricRepo, reviewRepo, service.SystemClock, logger.Named("series"))
	snapshotJob := service.NewDashboardSnapshotJob(tenantRepo, snapshotRepo, cfg.SnapshotConcurrency, service.SystemClock, logger.Named("dashboard-snapshots"))

	grpcHandlers := handler.NewGRPCHandlers(reviewService, seriesService, snapshotJob, cacheClient, logger, cfg.SeriesCacheTTL)

	grpcServer, err := grpcsrv.New(
		grpcsrv.WithPort(cfg.GRPCPort),
		grpcsrv.WithLogger(logger),
		grpcsrv.WithReflection(cfg.GRPCReflectionEnabled),
		grpcsrv.WithLogging(cfg.GRPCLoggingEnabled),
		grpcsrv.WithMaxRecvMsgSize(cfg.GRPCMaxRecvMsgBytes),
		grpcsrv.WithKeepalive(cfg.GRPCKeepaliveTime),
	)
	if err != nil {
		closeQuietly(cacheClient, dbPool)
		return nil, fmt.Errorf("failed to create gRPC server: %w", err)
	}

	grpcServer.RegisterServiceWithHealth(handler.ServiceName, func(s *grpc.Server) {
		handler.RegisterReviewEngineServer(s, grpcHandlers)
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return &App{
		logger:           logger,
		dbPool:           dbPool,
		cache:            cacheClient,
		reviews:          reviewService,
		snapshots:        snapshotJob,
		snapshotInterval: cfg.SnapshotInterval,
		grpcServer:       grpcServer,
		metricsServer:    metricsServer,
		otelShutdown:     otelShutdown,
	}, nil
}

// Run starts the application and blocks until a shutdown signal is received.
func (a *App) Run() error {
	a.logger.Info("application starting", zap.String("version", Version))

	a.reviews.Start(context.Background())

	go func() {
		if err := a.snapshots.Start(context.Background(), a.snapshotInterval); err != nil {
			a.logger.Error("dashboard snapshot scheduler failed", zap.Error(err))
		}
	}()

	if a.metricsServer != nil {
		go func() {
			a.logger.Info("metrics endpoint listening", zap.String("addr", a.metricsServer.Addr))
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	a.grpcServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("application shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.shutdown(ctx)

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			a.logger.Warn("shutdown completed but deadline exceeded")
		}
	default:
		a.logger.Info("graceful shutdown completed successfully")
	}

	_ = a.logger.Sync()
	return nil
}

// shutdown stops intake first, then drains queued reviews so their
// aggregates land before storage closes.
func (a *App) shutdown(ctx context.Context) {
	if err := a.grpcServer.Shutdown(ctx); err != nil {
		a.logger.Warn("gRPC server shutdown error", zap.Error(err))
	}
	if err := a.reviews.Shutdown(ctx); err != nil {
		a.logger.Error("review processor shutdown error", zap.Error(err))
	}
	a.snapshots.Stop()

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("cache shutdown error", zap.Error(err))
	}
	if err := a.dbPool.Close(); err != nil {
		a.logger.Error("database shutdown error", zap.Error(err))
	}
	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown error", zap.Error(err))
	}
}

func defaultModelSettings(cfg config.LLMConfig) models.ModelSettings {
	return models.ModelSettings{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

func closeQuietly(c seriesCache, db *sql.DB) {
	_ = c.Close()
	_ = db.Close()
}
