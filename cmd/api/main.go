package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-importer/internal/api"
	"recipe-importer/internal/api/handlers/imports"
	"recipe-importer/internal/app"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("bridge_transport", cfg.Bridge.Transport),
		zap.Bool("database", cfg.Database.URL != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Int("credentials", len(cfg.Auth.Credentials)),
	)

	buildCtx, cancelBuild := context.WithTimeout(context.Background(), cfg.Bridge.InitTimeout+30*time.Second)
	services, err := app.Build(buildCtx, cfg, app.Options{})
	cancelBuild()
	if err != nil {
		common.LogFatal("Failed to build services", zap.Error(err))
	}
	defer services.Close()

	sessions := imports.NewRegistry(cfg.Import.SessionTTL, 10*time.Minute)
	defer sessions.Close()

	// 設置路由
	router, cleanup, err := api.SetupRouter(cfg, api.Dependencies{
		Importer: services.Importer,
		Hosts:    services.Auth,
		Sessions: sessions,
		Queue:    services.Fetcher,
		Checks:   services.Checks,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
		return
	}

	common.LogInfo("Server exited")
}
