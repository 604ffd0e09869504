package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"recipe-importer/internal/core/parser"
)

const tartHTML = `<html><head><title>Tarte aux pommes</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Recipe",
  "name": "tarte aux pommes",
  "recipeIngredient": ["200 g farine", "4 pièces pommes", "2 càs huile d'olive"],
  "recipeInstructions": [{"@type": "HowToStep", "text": "Étaler la pâte."}, {"@type": "HowToStep", "text": "Cuire."}],
  "recipeYield": "4",
  "prepTime": "PT20M",
  "cookTime": "PT35M",
  "recipeCategory": "Dessert",
  "recipeCuisine": "Française",
  "keywords": "Automne, farine, Rapide"
}
</script></head><body></body></html>`

const loginHTML = `<html><head><title>Connexion</title></head><body><form></form></body></html>`

type testServer struct {
	*httptest.Server
	hits int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/recettes/tarte", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ts.hits, 1)
		fmt.Fprint(w, tartHTML)
	})
	mux.HandleFunc("/recettes/secret", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ts.hits, 1)
		http.Redirect(w, r, "/login?redirect=/recettes/secret", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginHTML)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type fakeAuth struct {
	html  string
	err   error
	calls int
	user  string
}

func (f *fakeAuth) IsSupported(url string) bool { return true }

func (f *fakeAuth) FetchAuthenticatedHTML(ctx context.Context, url, username, password string) (string, error) {
	f.calls++
	f.user = username
	return f.html, f.err
}

func TestFetchRecipeNativeParser(t *testing.T) {
	ts := newTestServer(t)
	p := NewHTTPProvider(Options{Timeout: 5 * time.Second})

	got, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/tarte", 2, []string{"^rapide$"})
	if err != nil {
		t.Fatalf("FetchRecipe: %v", err)
	}
	r := got.Recipe
	if r.Title != "Tarte aux pommes" {
		t.Fatalf("title = %q", r.Title)
	}
	if r.Persons != 4 {
		t.Fatalf("persons = %d", r.Persons)
	}
	if r.PrepMinutes != 20 || r.CookMinutes != 35 {
		t.Fatalf("minutes = %d/%d", r.PrepMinutes, r.CookMinutes)
	}
	if len(r.Ingredients) != 3 || r.Ingredients[0].Name != "farine" || r.Ingredients[0].Quantity != "200" || r.Ingredients[0].Unit != "g" {
		t.Fatalf("ingredients = %+v", r.Ingredients)
	}
	names := map[string]bool{}
	for _, tag := range r.Tags {
		names[tag.Name] = true
	}
	if !names["Automne"] || !names["Dessert"] || !names["Française"] {
		t.Fatalf("tags = %+v", r.Tags)
	}
	if names["Rapide"] {
		t.Fatalf("ignored pattern should drop Rapide")
	}
	if r.SourceURL != ts.URL+"/recettes/tarte" {
		t.Fatalf("source url = %q", r.SourceURL)
	}
}

func TestFetchRecipeUsesCache(t *testing.T) {
	ts := newTestServer(t)
	cache := NewRecordCache(10, time.Minute, 0)
	defer cache.Close()
	p := NewHTTPProvider(Options{Cache: cache})

	url := ts.URL + "/recettes/tarte"
	if _, err := p.FetchRecipe(context.Background(), url, 2, nil); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := p.FetchRecipe(context.Background(), url, 6, nil)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if hits := atomic.LoadInt64(&ts.hits); hits != 1 {
		t.Fatalf("server hit %d times", hits)
	}
	if second.Recipe.Title != "Tarte aux pommes" {
		t.Fatalf("cached title = %q", second.Recipe.Title)
	}
}

func TestFetchRecipeRedirectToLoginUsesAuth(t *testing.T) {
	ts := newTestServer(t)
	auth := &fakeAuth{html: tartHTML}
	p := NewHTTPProvider(Options{
		Auth: auth,
		Credentials: func(host string) (string, string, bool) {
			return "chef@example.com", "secret", true
		},
	})

	got, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/secret", 2, nil)
	if err != nil {
		t.Fatalf("FetchRecipe: %v", err)
	}
	if auth.calls != 1 || auth.user != "chef@example.com" {
		t.Fatalf("auth calls=%d user=%q", auth.calls, auth.user)
	}
	if got.Recipe.Title != "Tarte aux pommes" {
		t.Fatalf("title = %q", got.Recipe.Title)
	}
}

func TestFetchRecipeRedirectWithoutCredentials(t *testing.T) {
	ts := newTestServer(t)
	auth := &fakeAuth{html: tartHTML}
	p := NewHTTPProvider(Options{
		Auth:        auth,
		Credentials: func(host string) (string, string, bool) { return "", "", false },
	})

	_, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/secret", 2, nil)
	var authErr *parser.AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationRequiredError, got %v", err)
	}
	if auth.calls != 0 {
		t.Fatalf("auth should not be called without credentials")
	}
}

func TestFetchRecipeRequestCredentialsOverrideConfigured(t *testing.T) {
	ts := newTestServer(t)
	auth := &fakeAuth{html: tartHTML}
	p := NewHTTPProvider(Options{
		Auth:        auth,
		Credentials: func(host string) (string, string, bool) { return "configured", "x", true },
	})

	ctx := WithCredentials(context.Background(), func(host string) (string, string, bool) {
		return "request@example.com", "y", true
	})
	if _, err := p.FetchRecipe(ctx, ts.URL+"/recettes/secret", 2, nil); err != nil {
		t.Fatalf("FetchRecipe: %v", err)
	}
	if auth.user != "request@example.com" {
		t.Fatalf("user = %q", auth.user)
	}
}

func TestFetchRecipeAuthFailure(t *testing.T) {
	ts := newTestServer(t)
	authFailure := errors.New("invalid credentials")
	p := NewHTTPProvider(Options{
		Auth:        &fakeAuth{err: authFailure},
		Credentials: func(host string) (string, string, bool) { return "u", "p", true },
	})
	_, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/secret", 2, nil)
	if !errors.Is(err, authFailure) {
		t.Fatalf("expected wrapped auth failure, got %v", err)
	}
}

func TestFetchRecipeHTTPError(t *testing.T) {
	ts := newTestServer(t)
	p := NewHTTPProvider(Options{})
	if _, err := p.FetchRecipe(context.Background(), ts.URL+"/broken", 2, nil); err == nil {
		t.Fatalf("expected error for HTTP 500")
	}
}

func TestFetchRecipeInvalidPattern(t *testing.T) {
	p := NewHTTPProvider(Options{})
	if _, err := p.FetchRecipe(context.Background(), "http://unused", 2, []string{"("}); err == nil {
		t.Fatalf("expected pattern compile error")
	}
}

type fakeScraper struct {
	finalURL string
}

func (f *fakeScraper) ScrapeFromHTML(ctx context.Context, html, url, finalURL string, wildMode bool) (parser.RecipeRecord, error) {
	f.finalURL = finalURL
	return parser.RecipeRecord{
		Title:       "soupe",
		Ingredients: []string{"1 kg carottes"},
		Yields:      "Serves 3",
	}, nil
}

func TestFetchRecipeWithScraper(t *testing.T) {
	ts := newTestServer(t)
	scraper := &fakeScraper{}
	p := NewHTTPProvider(Options{Scraper: scraper, WildMode: true})

	got, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/tarte", 2, nil)
	if err != nil {
		t.Fatalf("FetchRecipe: %v", err)
	}
	if got.Record.Yields != "3 servings" || got.Recipe.Title != "Soupe" || got.Recipe.Persons != 3 {
		t.Fatalf("record not enhanced: %+v", got.Record)
	}
	if scraper.finalURL != ts.URL+"/recettes/tarte" {
		t.Fatalf("final url = %q", scraper.finalURL)
	}
}

func TestFetchRecipeWithScraperDetectsLoginRedirect(t *testing.T) {
	ts := newTestServer(t)
	p := NewHTTPProvider(Options{Scraper: &fakeScraper{}})
	_, err := p.FetchRecipe(context.Background(), ts.URL+"/recettes/secret", 2, nil)
	var authErr *parser.AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationRequiredError, got %v", err)
	}
}
