package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"recipe-importer/internal/core/parser"
)

type fakeCaller struct {
	response string
	err      error
	method   string
	params   interface{}
}

func (f *fakeCaller) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (string, error) {
	f.method = method
	f.params = params
	return f.response, f.err
}

func TestScrapeFromHTMLSuccess(t *testing.T) {
	caller := &fakeCaller{response: `{"success":true,"data":{"title":"Tarte","ingredients":["200 g farine"],"instructionsList":["Mélanger"],"host":""}}`}
	c := NewScraperClient(caller, 0)

	rec, err := c.ScrapeFromHTML(context.Background(), "<html></html>", "https://www.example.com/r/1", "", true)
	if err != nil {
		t.Fatalf("ScrapeFromHTML: %v", err)
	}
	if rec.Title != "Tarte" || len(rec.Ingredients) != 1 || rec.Instructions[0] != "Mélanger" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Host != "example.com" {
		t.Fatalf("host = %q", rec.Host)
	}
	if caller.method != MethodScrapeRecipeFromHTML {
		t.Fatalf("method = %q", caller.method)
	}
	params := caller.params.(map[string]interface{})
	if _, ok := params["finalUrl"]; ok {
		t.Fatalf("finalUrl should be omitted when empty")
	}
}

func TestScrapeFromHTMLAuthRequired(t *testing.T) {
	caller := &fakeCaller{response: `{"success":false,"error":{"type":"AuthenticationRequired","message":"login needed","host":"quitoque.fr"}}`}
	c := NewScraperClient(caller, 0)

	_, err := c.ScrapeFromHTML(context.Background(), "", "https://www.quitoque.fr/recette/1", "https://www.quitoque.fr/login", true)
	var authErr *parser.AuthenticationRequiredError
	if !errors.As(err, &authErr) || authErr.Host != "quitoque.fr" {
		t.Fatalf("expected AuthenticationRequiredError, got %v", err)
	}
}

func TestScrapeFromHTMLOtherErrors(t *testing.T) {
	c := NewScraperClient(&fakeCaller{response: `{"success":false,"error":{"type":"NoSchemaFoundInWildMode","message":"x"}}`}, 0)
	_, err := c.ScrapeFromHTML(context.Background(), "", "https://a.com/r", "", true)
	var nf *parser.NoRecipeFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NoRecipeFoundError, got %v", err)
	}

	c = NewScraperClient(&fakeCaller{response: `{"success":false,"error":{"type":"ValueError","message":"bad"}}`}, 0)
	_, err = c.ScrapeFromHTML(context.Background(), "", "https://a.com/r", "", true)
	var rt *RuntimeError
	if !errors.As(err, &rt) || rt.Type != "ValueError" {
		t.Fatalf("expected RuntimeError, got %v", err)
	}

	timeout := &TimeoutError{Kind: "call", Method: MethodScrapeRecipeFromHTML}
	c = NewScraperClient(&fakeCaller{err: timeout}, 0)
	if _, err = c.ScrapeFromHTML(context.Background(), "", "https://a.com/r", "", true); !errors.Is(err, timeout) {
		t.Fatalf("expected timeout passthrough, got %v", err)
	}
}

func TestSupportedHosts(t *testing.T) {
	c := NewScraperClient(&fakeCaller{response: `{"success":true,"data":["allrecipes.com","quitoque.fr"]}`}, 0)
	hosts, err := c.SupportedHosts(context.Background())
	if err != nil || len(hosts) != 2 {
		t.Fatalf("SupportedHosts = %v, %v", hosts, err)
	}

	c = NewScraperClient(&fakeCaller{response: `{"success":true,"data":true}`}, 0)
	ok, err := c.IsHostSupported(context.Background(), "allrecipes.com")
	if err != nil || !ok {
		t.Fatalf("IsHostSupported = %v, %v", ok, err)
	}

	c = NewScraperClient(&fakeCaller{response: `{"success":true,"data":["quitoque.fr"]}`}, 0)
	auth, err := c.SupportedAuthHosts(context.Background())
	if err != nil || len(auth) != 1 || auth[0] != "quitoque.fr" {
		t.Fatalf("SupportedAuthHosts = %v, %v", auth, err)
	}
}
