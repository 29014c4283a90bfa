package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/repository"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/internal/snapshot"
	"github.com/noah-isme/registree/pkg/cache"
	"github.com/noah-isme/registree/pkg/config"
	"github.com/noah-isme/registree/pkg/database"
	"github.com/noah-isme/registree/pkg/jobs"
	"github.com/noah-isme/registree/pkg/logger"
	"github.com/noah-isme/registree/pkg/storage"
)

// @title RegisTree API
// @version 1.0.0
// @description Local backend for the RegisTree school registry: undoable record edits and an audit trail.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logr.Info("database ready", zap.String("driver", db.DriverName()))

	metrics := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Audit.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable; audit page cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()
	pageCache := service.NewPageCache(cacheRepo, metrics, cfg.Audit.CacheTTL, logr, redisClient != nil)

	validate := validator.New()
	entityRepo := repository.NewEntityRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	executor := service.NewCommandExecutor(entityRepo, snapshot.NewCodec(), logr)
	recorder := service.NewChangeRecorder(auditRepo, cfg.Audit.PageSize, logr)
	history := service.NewHistory(executor, recorder, logr, service.WithHistoryMetrics(metrics))
	records := service.NewRecordService(entityRepo, history, validate, logr)
	settings := service.NewSettingsService(repository.NewSettingsRepository(db), validate, logr)
	school := schoolServices{
		settings:  settings,
		stats:     service.NewStatsService(entityRepo, settings, logr),
		promotion: service.NewPromotionService(entityRepo, history, settings, logr),
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	viewer := service.NewAuditViewer(recorder, authSvc, logr,
		service.WithAuditPageCache(pageCache, cfg.Audit.CacheTTL),
		service.WithAuditPageSize(cfg.Audit.PageSize))

	files, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		return fmt.Errorf("prepare exports dir: %w", err)
	}
	exportSvc := service.NewExportService(viewer, files, storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Exports.Retention),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.Retention}, logr).WithMetrics(metrics)
	queue := jobs.NewQueue("audit-exports", exportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Exports.Workers,
		MaxRetries: cfg.Exports.Retries,
		OnFailure:  exportSvc.HandleFailure,
		Logger:     logr,
	})
	exportSvc.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	// cached pages are keyed by sequence number, which restarts with a new database
	if err := viewer.PurgeCache(ctx); err != nil {
		logr.Warn("audit cache purge failed", zap.Error(err))
	}
	if removed, err := exportSvc.Cleanup(); err != nil {
		logr.Warn("export cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		logr.Info("expired exports removed", zap.Int("count", len(removed)))
	}

	var cachePing pinger
	if redisClient != nil {
		cachePing = cacheRepo
	}
	router := newRouter(cfg, logr, routes{
		auth:    authSvc,
		records: records,
		history: history,
		viewer:  viewer,
		exports: exportSvc,
		metrics: metrics,
		school:  school,
		db:      db,
		cache:   cachePing,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
