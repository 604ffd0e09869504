package provider

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/pkg/common"
)

type fakeProvider struct {
	mu     sync.Mutex
	failed map[string]error
	calls  []string
}

func (f *fakeProvider) FetchRecipe(ctx context.Context, url string, defaultPersons int, ignoredPatterns []string) (FetchedRecipe, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	err := f.failed[url]
	f.mu.Unlock()
	if err != nil {
		return FetchedRecipe{}, err
	}
	return FetchedRecipe{Recipe: common.ScrapedRecipe{Title: url, SourceURL: url, Persons: defaultPersons}}, nil
}

func TestBatchFetchKeepsInputOrder(t *testing.T) {
	failure := errors.New("no recipe")
	fp := &fakeProvider{failed: map[string]error{"u3": failure}}
	b := NewBatchFetcher(fp, 3, 10)

	urls := []string{"u1", "u2", "u3", "u4", "u5"}
	results, err := b.Fetch(context.Background(), BatchRequest{URLs: urls, DefaultPersons: 4})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(results) != len(urls) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Fatalf("result %d url = %q", i, r.URL)
		}
		if urls[i] == "u3" {
			if !errors.Is(r.Err, failure) {
				t.Fatalf("expected failure for u3, got %v", r.Err)
			}
			continue
		}
		if r.Err != nil || r.Recipe.Recipe.Title != urls[i] || r.Recipe.Recipe.Persons != 4 {
			t.Fatalf("unexpected result %+v", r)
		}
	}

	st := b.Status()
	if st.ProcessedCount != 5 || st.FailedCount != 1 || st.QueueLength != 0 || st.Workers != 3 {
		t.Fatalf("status = %+v", st)
	}
}

func TestBatchFetchRejectsOversizedBatch(t *testing.T) {
	b := NewBatchFetcher(&fakeProvider{}, 2, 2)
	if _, err := b.Fetch(context.Background(), BatchRequest{URLs: []string{"a", "b", "c"}}); err == nil {
		t.Fatalf("expected queue size error")
	}
}

func TestBatchFetchCancelled(t *testing.T) {
	fp := &fakeProvider{}
	b := NewBatchFetcher(fp, 2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := b.Fetch(ctx, BatchRequest{URLs: []string{"a", "b"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("expected per-url cancellation, got %v", r.Err)
		}
	}
	if len(fp.calls) != 0 {
		t.Fatalf("provider should not be called after cancellation")
	}
}

func TestRecordCacheEvictsLeastUsed(t *testing.T) {
	c := NewRecordCache(2, time.Minute, 0)
	defer c.Close()

	c.Set("a", parser.RecipeRecord{Title: "A"})
	c.Set("b", parser.RecipeRecord{Title: "B"})
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should be cached")
	}
	c.Set("c", parser.RecipeRecord{Title: "C"})

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if r, ok := c.Get("a"); !ok || r.Title != "A" {
		t.Fatalf("a should survive eviction")
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestRecordCacheExpires(t *testing.T) {
	c := NewRecordCache(10, 10*time.Millisecond, 0)
	defer c.Close()
	c.Set("a", parser.RecipeRecord{Title: "A"})
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestRecordCacheReturnsCopies(t *testing.T) {
	c := NewRecordCache(10, time.Minute, 0)
	defer c.Close()
	c.Set("a", parser.RecipeRecord{Keywords: []string{"x"}})
	r, _ := c.Get("a")
	r.Keywords[0] = "changed"
	again, _ := c.Get("a")
	if again.Keywords[0] != "x" {
		t.Fatalf("cache entry was mutated through a returned copy")
	}
}

func TestToScrapedRecipeStructuredData(t *testing.T) {
	record := parser.RecipeRecord{
		Title:       "Curry",
		Ingredients: []string{"ignored line"},
		ParsedIngredients: []parser.ParsedIngredient{
			{Quantity: "375", Unit: "g", Name: "Poulet (filet)"},
			{Name: " "},
		},
		ParsedInstructions: []parser.InstructionGroup{
			{Title: "La sauce", Instructions: []string{"Mixer.", "Réserver."}},
			{Instructions: []string{"Servir."}},
		},
		Keywords: []string{"Épicé", "épicé ", "Sans gluten"},
		Category: "Plat, Plat",
		Cuisine:  "Indienne",
	}
	ignored, err := CompilePatterns([]string{"gluten"})
	if err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}
	r := ToScrapedRecipe(record, "https://x", 2, ignored)

	if len(r.Ingredients) != 1 || r.Ingredients[0].Name != "Poulet (filet)" || r.Ingredients[0].Quantity != "375" {
		t.Fatalf("ingredients = %+v", r.Ingredients)
	}
	if len(r.Instructions) != 3 || r.Instructions[0] != "La sauce : Mixer." || r.Instructions[2] != "Servir." {
		t.Fatalf("instructions = %v", r.Instructions)
	}
	var tags []string
	for _, tag := range r.Tags {
		tags = append(tags, tag.Name)
	}
	if len(tags) != 3 || tags[0] != "Épicé" || tags[1] != "Plat" || tags[2] != "Indienne" {
		t.Fatalf("tags = %v", tags)
	}
	if r.Persons != 2 {
		t.Fatalf("persons should fall back to default, got %d", r.Persons)
	}
}

func TestCompilePatternsCaseInsensitive(t *testing.T) {
	pats, err := CompilePatterns([]string{"^hello", "", "  "})
	if err != nil || len(pats) != 1 {
		t.Fatalf("CompilePatterns = %v, %v", pats, err)
	}
	if !matchesAny("HELLO fresh", pats) || matchesAny("say hello", []*regexp.Regexp{pats[0]}) {
		t.Fatalf("unexpected matching")
	}
}
