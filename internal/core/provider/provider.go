package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/pkg/common"
)

// FetchedRecipe 單一網址的抓取結果
type FetchedRecipe struct {
	Record parser.RecipeRecord
	Recipe common.ScrapedRecipe
}

// Provider 食譜來源
type Provider interface {
	FetchRecipe(ctx context.Context, url string, defaultPersons int, ignoredPatterns []string) (FetchedRecipe, error)
}

// Scraper 以外部爬蟲解析 HTML，未設定時使用內建解析器
type Scraper interface {
	ScrapeFromHTML(ctx context.Context, html, url, finalURL string, wildMode bool) (parser.RecipeRecord, error)
}

// Authenticator 需要登入的網站改用瀏覽環境取得頁面
type Authenticator interface {
	IsSupported(url string) bool
	FetchAuthenticatedHTML(ctx context.Context, url, username, password string) (string, error)
}

// CredentialSource 依主機取得帳密
type CredentialSource func(host string) (username, password string, ok bool)

type credentialsKey struct{}

// WithCredentials 為單次請求附加帳密，優先於 Options.Credentials
func WithCredentials(ctx context.Context, source CredentialSource) context.Context {
	return context.WithValue(ctx, credentialsKey{}, source)
}

func (p *HTTPProvider) credentialsFor(ctx context.Context, host string) (string, string, bool) {
	if source, ok := ctx.Value(credentialsKey{}).(CredentialSource); ok && source != nil {
		if username, password, found := source(host); found {
			return username, password, true
		}
	}
	if p.credentials == nil {
		return "", "", false
	}
	return p.credentials(host)
}

// Options HTTPProvider 設定
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	Scraper     Scraper
	WildMode    bool
	Auth        Authenticator
	Credentials CredentialSource
	Cache       *RecordCache
}

// HTTPProvider 以 HTTP 下載頁面並解析食譜
type HTTPProvider struct {
	client      *resty.Client
	scraper     Scraper
	wildMode    bool
	auth        Authenticator
	credentials CredentialSource
	cache       *RecordCache
}

// NewHTTPProvider 創建 HTTP 食譜來源
func NewHTTPProvider(opts Options) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &HTTPProvider{
		client:      client,
		scraper:     opts.Scraper,
		wildMode:    opts.WildMode,
		auth:        opts.Auth,
		credentials: opts.Credentials,
		cache:       opts.Cache,
	}
}

// FetchRecipe 下載、解析、增強並轉換單一食譜
func (p *HTTPProvider) FetchRecipe(ctx context.Context, url string, defaultPersons int, ignoredPatterns []string) (FetchedRecipe, error) {
	ignored, err := CompilePatterns(ignoredPatterns)
	if err != nil {
		return FetchedRecipe{}, err
	}

	if p.cache != nil {
		if record, ok := p.cache.Get(url); ok {
			return FetchedRecipe{Record: record, Recipe: ToScrapedRecipe(record, url, defaultPersons, ignored)}, nil
		}
	}

	record, err := p.fetchRecord(ctx, url)
	if err != nil {
		return FetchedRecipe{}, err
	}
	record = parser.Enhance(record)

	if p.cache != nil {
		p.cache.Set(url, record)
	}

	common.LogInfo("食譜已解析",
		zap.String("url", url),
		zap.String("title", record.Title),
		zap.Int("ingredients", len(record.Ingredients)),
	)
	return FetchedRecipe{Record: record, Recipe: ToScrapedRecipe(record, url, defaultPersons, ignored)}, nil
}

func (p *HTTPProvider) fetchRecord(ctx context.Context, url string) (parser.RecipeRecord, error) {
	html, finalURL, err := p.download(ctx, url)
	if err != nil {
		return parser.RecipeRecord{}, err
	}

	record, err := p.parse(ctx, html, url, finalURL)
	var authErr *parser.AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		return record, err
	}

	if p.auth == nil || !p.auth.IsSupported(url) {
		return parser.RecipeRecord{}, err
	}
	username, password, ok := p.credentialsFor(ctx, authErr.Host)
	if !ok {
		common.LogWarn("需要登入但沒有帳密", zap.String("host", authErr.Host))
		return parser.RecipeRecord{}, err
	}

	common.LogInfo("改用登入流程取得頁面", zap.String("host", authErr.Host))
	html, err = p.auth.FetchAuthenticatedHTML(ctx, url, username, password)
	if err != nil {
		return parser.RecipeRecord{}, fmt.Errorf("authenticated fetch %s: %w", url, err)
	}
	return p.parse(ctx, html, url, "")
}

// download 回傳頁面內容與跟隨轉址後的網址
func (p *HTTPProvider) download(ctx context.Context, url string) (string, string, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode())
	}

	finalURL := url
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	if finalURL != url {
		common.LogDebug("頁面已轉址", zap.String("url", url), zap.String("final_url", finalURL))
	}
	return resp.String(), finalURL, nil
}

func (p *HTTPProvider) parse(ctx context.Context, html, url, finalURL string) (parser.RecipeRecord, error) {
	if p.scraper != nil {
		if finalURL != "" {
			if err := parser.DetectAuthRequired(html, finalURL, url); err != nil {
				return parser.RecipeRecord{}, err
			}
		}
		return p.scraper.ScrapeFromHTML(ctx, html, url, finalURL, p.wildMode)
	}
	if finalURL == "" {
		return parser.Parse(html, url)
	}
	return parser.ParseRedirected(html, url, finalURL)
}
