package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/registree/api/swagger"
	"github.com/noah-isme/registree/internal/handler"
	"github.com/noah-isme/registree/internal/middleware"
	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/pkg/config"
	"github.com/noah-isme/registree/pkg/logger"
	corsmiddleware "github.com/noah-isme/registree/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/registree/pkg/middleware/requestid"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type routes struct {
	auth    *service.AuthService
	records *service.RecordService
	history *service.History
	viewer  *service.AuditViewer
	exports *service.ExportService
	metrics *service.MetricsService
	school  schoolServices
	db      pinger
	cache   pinger
}

type schoolServices struct {
	settings  *service.SettingsService
	stats     *service.StatsService
	promotion *service.PromotionService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	metricsHandler := handler.NewMetricsHandler(deps.metrics.Handler(), deps.db, deps.cache)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.auth)
	recordHandler := handler.NewRecordHandler(deps.records, deps.history)
	historyHandler := handler.NewHistoryHandler(deps.history)
	auditHandler := handler.NewAuditHandler(deps.viewer, deps.exports)
	schoolHandler := handler.NewSchoolHandler(deps.school.settings, deps.school.stats, deps.school.promotion, deps.history)

	api := r.Group(cfg.APIPrefix)
	api.GET("/auth/status", authHandler.Status)
	api.POST("/auth/setup", authHandler.Setup)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/exports/:token", auditHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	records := secured.Group("/records/:entity")
	records.GET("", recordHandler.List)
	records.POST("", recordHandler.Create)
	records.GET("/:id", recordHandler.Get)
	records.PUT("/:id", recordHandler.Update)
	records.DELETE("/:id", recordHandler.Delete)

	secured.GET("/stats", schoolHandler.Stats)
	secured.GET("/settings", schoolHandler.Settings)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.PUT("/settings", schoolHandler.UpdateSettings)
	admin.POST("/students/promote", schoolHandler.Promote)

	history := secured.Group("/history")
	history.GET("", historyHandler.State)
	history.POST("/undo", historyHandler.Undo)
	history.POST("/redo", historyHandler.Redo)

	audit := secured.Group("/audit-logs")
	audit.Use(middleware.RequireRoles(models.RoleAdmin))
	audit.GET("", auditHandler.List)
	audit.GET("/export", auditHandler.Export)
	audit.POST("/exports", auditHandler.SubmitExport)
	audit.GET("/exports", auditHandler.ListExports)
	audit.GET("/exports/:id", auditHandler.ExportStatus)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
	return r
}
