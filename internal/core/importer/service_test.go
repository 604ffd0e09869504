package importer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"recipe-importer/internal/core/catalog"
	"recipe-importer/internal/core/history"
	"recipe-importer/internal/core/provider"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

func init() {
	common.SetLogger(zap.NewNop())
}

type fakeFetcher struct {
	recipes map[string]common.ScrapedRecipe
	errs    map[string]error
	last    provider.BatchRequest
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, req provider.BatchRequest) ([]provider.Result, error) {
	f.calls++
	f.last = req
	out := make([]provider.Result, len(req.URLs))
	for i, u := range req.URLs {
		out[i] = provider.Result{URL: u}
		if err, ok := f.errs[u]; ok {
			out[i].Err = err
			continue
		}
		out[i].Recipe = provider.FetchedRecipe{Recipe: f.recipes[u]}
	}
	return out, nil
}

func salad() common.ScrapedRecipe {
	return common.ScrapedRecipe{
		Title:     "Salade",
		SourceURL: "https://x/salade",
		Persons:   2,
		Ingredients: []common.IngredientReference{
			{Name: "Tomate", Quantity: "2"},
			{Name: "Tomates", Quantity: "3"},
			{Name: "Feta", Quantity: "100", Unit: "g"},
		},
		Tags: []common.TagReference{{Name: "Rapide"}, {Name: "Été"}},
	}
}

func newCatalog() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(
		[]common.IngredientReference{{ID: "i-1", Name: "Tomate"}},
		[]common.TagReference{{ID: "t-2", Name: "Rapide"}},
	)
}

func TestStartCollectsFailuresAndSkipsImported(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{
		recipes: map[string]common.ScrapedRecipe{"https://x/salade": salad()},
		errs:    map[string]error{"https://x/broken": errors.New("boom")},
	}
	hist := history.NewMemoryHistory()
	_ = hist.RecordImportHistory(ctx, "quitoque", []string{"https://x/old"})

	svc := NewService(Options{Fetcher: fetcher, Catalog: newCatalog(), History: hist, DefaultPersons: 3})
	batch, err := svc.Start(ctx, Request{
		Provider:     "quitoque",
		URLs:         []string{"https://x/salade", "https://x/old", "https://x/broken"},
		SkipImported: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !reflect.DeepEqual(batch.Skipped, []string{"https://x/old"}) {
		t.Fatalf("skipped = %v", batch.Skipped)
	}
	if !reflect.DeepEqual(fetcher.last.URLs, []string{"https://x/salade", "https://x/broken"}) {
		t.Fatalf("fetched urls = %v", fetcher.last.URLs)
	}
	if fetcher.last.DefaultPersons != 3 {
		t.Fatalf("default persons = %d", fetcher.last.DefaultPersons)
	}
	if len(batch.Failed) != 1 || batch.Failed[0].URL != "https://x/broken" || batch.Failed[0].Error != "boom" {
		t.Fatalf("failed = %+v", batch.Failed)
	}
	if batch.Workflow.Phase() != workflow.PhaseTags {
		t.Fatalf("phase = %s", batch.Workflow.Phase())
	}
}

func TestStartWithoutRecipes(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{"https://x/a": errors.New("boom")}}
	svc := NewService(Options{Fetcher: fetcher, Catalog: newCatalog()})

	batch, err := svc.Start(context.Background(), Request{URLs: []string{"https://x/a"}})
	if !errors.Is(err, ErrNoRecipesFetched) {
		t.Fatalf("expected ErrNoRecipesFetched, got %v", err)
	}
	if batch.Provider != "x" || len(batch.Failed) != 1 || batch.Workflow != nil {
		t.Fatalf("batch = %+v", batch)
	}

	if _, err := svc.Start(context.Background(), Request{}); !errors.Is(err, ErrNoURLs) {
		t.Fatalf("expected ErrNoURLs, got %v", err)
	}
}

func TestStartAllAlreadyImportedDoesNotFetch(t *testing.T) {
	ctx := context.Background()
	hist := history.NewMemoryHistory()
	_ = hist.RecordImportHistory(ctx, "p", []string{"https://x/a"})
	fetcher := &fakeFetcher{}
	svc := NewService(Options{Fetcher: fetcher, Catalog: newCatalog(), History: hist})

	batch, err := svc.Start(ctx, Request{Provider: "p", URLs: []string{"https://x/a"}, SkipImported: true})
	if !errors.Is(err, ErrNoRecipesFetched) {
		t.Fatalf("expected ErrNoRecipesFetched, got %v", err)
	}
	if fetcher.calls != 0 || len(batch.Skipped) != 1 {
		t.Fatalf("calls=%d skipped=%v", fetcher.calls, batch.Skipped)
	}
}

func TestAutoResolveAcceptAndCreate(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog()
	hist := history.NewMemoryHistory()
	fetcher := &fakeFetcher{recipes: map[string]common.ScrapedRecipe{"https://x/salade": salad()}}
	svc := NewService(Options{Fetcher: fetcher, Catalog: cat, History: hist})

	batch, err := svc.Start(ctx, Request{Provider: "p", URLs: []string{"https://x/salade"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := AutoResolve(ctx, batch.Workflow, Policy{AcceptFirst: true, CreateMissing: true})
	if err != nil {
		t.Fatalf("AutoResolve: %v", err)
	}
	if res != (Resolution{Accepted: 1, Created: 2}) {
		t.Fatalf("resolution = %+v", res)
	}
	if batch.Workflow.Phase() != workflow.PhaseComplete || batch.Workflow.ImportedCount() != 1 {
		t.Fatalf("phase=%s imported=%d", batch.Workflow.Phase(), batch.Workflow.ImportedCount())
	}

	stored := cat.Recipes()
	if len(stored) != 1 {
		t.Fatalf("stored = %d", len(stored))
	}
	ings := stored[0].Ingredients
	if len(ings) != 2 || ings[0].ID != "i-1" || ings[0].Quantity != "2" || ings[1].Name != "Feta" || ings[1].Unit != "g" {
		t.Fatalf("ingredients = %+v", ings)
	}
	if len(stored[0].Tags) != 2 {
		t.Fatalf("tags = %+v", stored[0].Tags)
	}

	fresh, _ := hist.FilterNew(ctx, "p", []string{"https://x/salade"})
	if len(fresh) != 0 {
		t.Fatalf("source url should be recorded after commit")
	}
}

func TestAutoResolveDismissesByDefault(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog()
	fetcher := &fakeFetcher{recipes: map[string]common.ScrapedRecipe{"https://x/salade": salad()}}
	svc := NewService(Options{Fetcher: fetcher, Catalog: cat})

	batch, err := svc.Start(ctx, Request{URLs: []string{"https://x/salade"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := AutoResolve(ctx, batch.Workflow, Policy{})
	if err != nil {
		t.Fatalf("AutoResolve: %v", err)
	}
	if res.Dismissed != 3 || res.Accepted != 0 || res.Created != 0 {
		t.Fatalf("resolution = %+v", res)
	}
	stored := cat.Recipes()
	if len(stored) != 1 || len(stored[0].Ingredients) != 1 || len(stored[0].Tags) != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}
