package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/core/catalog"
	"recipe-importer/internal/core/history"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
)

func init() {
	common.SetLogger(zap.NewNop())
}

func localConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{Transport: "none", InitTimeout: time.Second, CallTimeout: time.Second},
		Auth:   config.AuthConfig{Timeout: time.Second, Headless: true},
		Fetch: config.FetchConfig{
			Timeout:      time.Second,
			Workers:      2,
			MaxQueueSize: 10,
			CacheEnabled: true,
			CacheSize:    10,
			CacheTTL:     time.Minute,
		},
		Import: config.ImportConfig{DefaultPersons: 4},
	}
}

func TestBuildWithoutExternalServices(t *testing.T) {
	a, err := Build(context.Background(), localConfig(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if _, ok := a.Catalog.(*catalog.MemoryCatalog); !ok {
		t.Fatalf("catalog = %T", a.Catalog)
	}
	if _, ok := a.History.(*history.MemoryHistory); !ok {
		t.Fatalf("history = %T", a.History)
	}
	if len(a.Checks) != 0 {
		t.Fatalf("checks = %d", len(a.Checks))
	}
	if hosts := a.Auth.SupportedHosts(); len(hosts) == 0 {
		t.Fatalf("expected default auth hosts")
	}
	if a.Fetcher.Status().Workers != 2 {
		t.Fatalf("workers = %d", a.Fetcher.Status().Workers)
	}
}

func TestDryRunDoesNotWrite(t *testing.T) {
	a, err := Build(context.Background(), localConfig(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.Catalog.AddMultipleRecipes(ctx, []common.ScrapedRecipe{{Title: "x"}}); err != nil {
		t.Fatalf("AddMultipleRecipes: %v", err)
	}
	inner := a.Catalog.(dryRunCatalog).Catalog.(*catalog.MemoryCatalog)
	if len(inner.Recipes()) != 0 {
		t.Fatalf("dry run wrote recipes")
	}

	if err := a.History.RecordImportHistory(ctx, "p", []string{"u"}); err != nil {
		t.Fatalf("RecordImportHistory: %v", err)
	}
	fresh, _ := a.History.FilterNew(ctx, "p", []string{"u"})
	if len(fresh) != 1 {
		t.Fatalf("dry run recorded history")
	}
}
