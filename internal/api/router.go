package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/api/handlers/health"
	"recipe-importer/internal/api/handlers/imports"
	"recipe-importer/internal/api/middleware"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
)

// 匯入請求需要抓取整批網址並可能經過登入流程
const timeoutDuration = 5 * time.Minute

// Dependencies 路由所需的服務
type Dependencies struct {
	Importer imports.Starter
	Hosts    imports.HostLister
	Sessions *imports.Registry
	Queue    health.QueueReporter
	Checks   []health.Check
}

// SetupRouter 設置路由
// 回傳的 cleanup 停止中間件的背景清理
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, func(), error) {
	if deps.Importer == nil || deps.Sessions == nil {
		return nil, nil, fmt.Errorf("importer and session registry are required")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	// 全局中間件：設置超時和服務
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Set("config", cfg)
		c.Set("sessions", deps.Sessions)
		c.Set("readiness_checks", deps.Checks)
		if deps.Queue != nil {
			c.Set("queue", deps.Queue)
		}

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeoutDuration),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, common.ErrorResponse{
				Code:    common.ErrGatewayTimeout.Code,
				Message: common.ErrGatewayTimeout.Message,
			})
		}
	})

	// 健康檢查路由
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	dedup := middleware.NewDeduplicator(cfg.DedupWindow)
	importHandler := imports.NewHandler(deps.Importer, deps.Hosts, deps.Sessions)
	importHandler.Register(router.Group("/api/v1"), dedup.Middleware())

	common.LogInfo("Router setup completed successfully",
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
		zap.Int("readiness_checks", len(deps.Checks)),
	)

	return router, dedup.Close, nil
}
