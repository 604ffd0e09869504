package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/api/handlers/health"
	"recipe-importer/internal/core/auth"
	"recipe-importer/internal/core/bridge"
	"recipe-importer/internal/core/catalog"
	"recipe-importer/internal/core/history"
	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/provider"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/infrastructure/database"
	"recipe-importer/internal/pkg/common"
)

// Options 組裝選項
type Options struct {
	// DryRun 讀取既有目錄與匯入紀錄，但不寫入任何資料
	DryRun bool
}

// App 組裝完成的服務
type App struct {
	Config   *config.Config
	Importer *importer.Service
	Auth     *auth.Flow
	Fetcher  *provider.BatchFetcher
	Catalog  importer.Catalog
	History  history.Recorder
	Checks   []health.Check

	closers []func()
}

// Build 依設定組裝直譯器橋接、登入流程、抓取、目錄與匯入紀錄
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	scraper, err := a.buildScraper(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Auth = auth.NewFlow(nil, auth.NewChromeFactory(cfg.Auth.Headless, cfg.Auth.UserAgent), cfg.Auth.Timeout)
	a.closers = append(a.closers, a.Auth.Destroy)

	var cache *provider.RecordCache
	if cfg.Fetch.CacheEnabled {
		cache = provider.NewRecordCache(cfg.Fetch.CacheSize, cfg.Fetch.CacheTTL, 5*time.Minute)
		a.closers = append(a.closers, func() { _ = cache.Close() })
	}

	httpProvider := provider.NewHTTPProvider(provider.Options{
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		Scraper:     scraper,
		WildMode:    cfg.Bridge.WildMode,
		Auth:        a.Auth,
		Credentials: cfg.Auth.Credential,
		Cache:       cache,
	})
	a.Fetcher = provider.NewBatchFetcher(httpProvider, cfg.Fetch.Workers, cfg.Fetch.MaxQueueSize)

	if err := a.buildCatalog(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if opts.DryRun {
		a.Catalog = dryRunCatalog{Catalog: a.Catalog}
		a.History = dryRunHistory{Recorder: a.History}
		common.LogInfo("試跑模式：不會寫入目錄與匯入紀錄")
	}

	a.Importer = importer.NewService(importer.Options{
		Fetcher:         a.Fetcher,
		Catalog:         a.Catalog,
		History:         a.History,
		DefaultPersons:  cfg.Import.DefaultPersons,
		IgnoredPatterns: cfg.Import.IgnoredPatterns,
	})

	common.LogInfo("服務組裝完成",
		zap.String("bridge_transport", cfg.Bridge.Transport),
		zap.Bool("external_scraper", scraper != nil),
		zap.Strings("auth_hosts", a.Auth.SupportedHosts()),
		zap.Bool("fetch_cache", cache != nil),
		zap.Int("readiness_checks", len(a.Checks)),
	)
	return a, nil
}

// buildScraper 啟動直譯器橋接；未設定或未就緒時回傳 nil，改用內建解析器
func (a *App) buildScraper(ctx context.Context) (provider.Scraper, error) {
	cfg := a.Config.Bridge
	var transport bridge.Transport
	switch cfg.Transport {
	case "process":
		transport = bridge.NewProcessTransport(cfg.Command, cfg.Args...)
	case "page":
		transport = bridge.NewPageTransport(cfg.PageURL, a.Config.Auth.Headless)
	default:
		common.LogInfo("未設定直譯器橋接，使用內建解析器")
		return nil, nil
	}

	b := bridge.New(transport, bridge.Options{InitTimeout: cfg.InitTimeout, CallTimeout: cfg.CallTimeout})
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("init bridge: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := b.Destroy(); err != nil {
			common.LogWarn("關閉直譯器橋接失敗", zap.Error(err))
		}
	})

	ready, err := b.WaitForReady(ctx)
	if !ready {
		common.LogWarn("直譯器未就緒，改用內建解析器", zap.String("transport", cfg.Transport), zap.Error(err))
		a.Checks = append(a.Checks, health.Check{Name: "bridge", Probe: func(context.Context) error {
			return fmt.Errorf("bridge not ready: %v", err)
		}})
		return nil, nil
	}

	a.Checks = append(a.Checks, health.Check{Name: "bridge", Probe: func(context.Context) error {
		if !b.Ready() {
			return bridge.ErrBridgeNotReady
		}
		return nil
	}})

	client := bridge.NewScraperClient(b, cfg.CallTimeout)
	if hosts, err := client.SupportedHosts(ctx); err == nil {
		common.LogInfo("直譯器已就緒", zap.Int("supported_hosts", len(hosts)))
	}
	return client, nil
}

func (a *App) buildCatalog(ctx context.Context) error {
	cfg := a.Config.Database
	if cfg.URL == "" {
		common.LogWarn("未設定資料庫，使用行程內目錄")
		a.Catalog = catalog.NewMemoryCatalog(nil, nil)
		return nil
	}

	db, err := database.Connect(ctx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	a.Catalog = catalog.NewPostgresCatalog(db)
	a.Checks = append(a.Checks, health.Check{Name: "database", Probe: db.Ping})
	return nil
}

func (a *App) buildHistory(ctx context.Context) error {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		common.LogWarn("未設定 Redis，匯入紀錄只保存在行程內")
		a.History = history.NewMemoryHistory()
		return nil
	}

	rh, err := history.NewRedisHistory(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.HistoryTTL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if err := rh.Close(); err != nil {
			common.LogWarn("關閉 Redis 連線失敗", zap.Error(err))
		}
	})
	a.History = rh
	a.Checks = append(a.Checks, health.Check{Name: "redis", Probe: rh.Ping})
	return nil
}

// Close 依建立的相反順序釋放資源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// dryRunCatalog 讀取既有目錄，寫入只記錄日誌
type dryRunCatalog struct {
	importer.Catalog
}

func (c dryRunCatalog) AddMultipleRecipes(ctx context.Context, recipes []common.ScrapedRecipe) error {
	for _, r := range recipes {
		common.LogInfo("試跑：略過寫入食譜",
			zap.String("title", r.Title),
			zap.Int("ingredients", len(r.Ingredients)),
			zap.Int("tags", len(r.Tags)),
		)
	}
	return nil
}

// dryRunHistory 讀取匯入紀錄，不寫入
type dryRunHistory struct {
	history.Recorder
}

func (h dryRunHistory) RecordImportHistory(ctx context.Context, provider string, urls []string) error {
	return nil
}
