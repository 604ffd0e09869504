package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/pkg/common"
)

// 直譯器提供的方法
const (
	MethodScrapeRecipeFromHTML  = "scrapeRecipeFromHtml"
	MethodGetSupportedHosts     = "getSupportedHosts"
	MethodIsHostSupported       = "isHostSupported"
	MethodGetSupportedAuthHosts = "getSupportedAuthHosts"
)

// Caller 可發出 RPC 的對象
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (string, error)
}

// envelope 直譯器方法的回傳格式
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Host    string `json:"host"`
	} `json:"error"`
}

// ScraperClient 以直譯器內的爬蟲程式庫解析食譜
type ScraperClient struct {
	caller  Caller
	timeout time.Duration
}

// NewScraperClient 創建爬蟲客戶端，timeout 為 0 時使用橋接預設值
func NewScraperClient(caller Caller, timeout time.Duration) *ScraperClient {
	return &ScraperClient{caller: caller, timeout: timeout}
}

// ScrapeFromHTML 解析已下載的頁面
func (c *ScraperClient) ScrapeFromHTML(ctx context.Context, html, url, finalURL string, wildMode bool) (parser.RecipeRecord, error) {
	params := map[string]interface{}{
		"html":     html,
		"url":      url,
		"wildMode": wildMode,
	}
	if finalURL != "" {
		params["finalUrl"] = finalURL
	}

	var record parser.RecipeRecord
	if err := c.invoke(ctx, MethodScrapeRecipeFromHTML, params, url, &record); err != nil {
		return parser.RecipeRecord{}, err
	}
	if record.Host == "" {
		record.Host = common.HostOf(url)
	}
	return record, nil
}

// SupportedHosts 爬蟲程式庫支援的網站
func (c *ScraperClient) SupportedHosts(ctx context.Context) ([]string, error) {
	var hosts []string
	if err := c.invoke(ctx, MethodGetSupportedHosts, nil, "", &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// IsHostSupported 查詢單一網站是否支援
func (c *ScraperClient) IsHostSupported(ctx context.Context, host string) (bool, error) {
	var supported bool
	if err := c.invoke(ctx, MethodIsHostSupported, map[string]interface{}{"host": host}, "", &supported); err != nil {
		return false, err
	}
	return supported, nil
}

// SupportedAuthHosts 需要登入才能爬取的網站
func (c *ScraperClient) SupportedAuthHosts(ctx context.Context) ([]string, error) {
	var hosts []string
	if err := c.invoke(ctx, MethodGetSupportedAuthHosts, nil, "", &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

func (c *ScraperClient) invoke(ctx context.Context, method string, params interface{}, url string, out interface{}) error {
	raw, err := c.caller.Call(ctx, method, params, c.timeout)
	if err != nil {
		return err
	}

	var env envelope
	if err := common.ParseJSON(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !env.Success {
		return envelopeError(env, url)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		if method == MethodScrapeRecipeFromHTML {
			return &parser.NoRecipeFoundError{URL: url}
		}
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", method, err)
	}
	return nil
}

func envelopeError(env envelope, url string) error {
	if env.Error == nil {
		return &RuntimeError{Message: "interpreter reported failure without details"}
	}
	e := env.Error
	switch {
	case e.Type == "AuthenticationRequired":
		host := e.Host
		if host == "" {
			host = common.HostOf(url)
		}
		common.LogInfo("頁面需要登入", zap.String("host", host))
		return &parser.AuthenticationRequiredError{Host: host, Message: e.Message}
	case strings.Contains(e.Type, "NoSchemaFound"), strings.Contains(e.Type, "NoRecipe"):
		return &parser.NoRecipeFoundError{URL: url}
	default:
		return &RuntimeError{Type: e.Type, Message: e.Message}
	}
}
