package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// Events 瀏覽環境回呼
type Events struct {
	// OnLoadEnd 頁面載入完成，參數為實際落地的網址
	OnLoadEnd func(landedURL string)
	// OnMessage 頁面腳本送回的訊息
	OnMessage func(data []byte)
}

// BrowsingContext 短暫存在、可注入腳本的瀏覽環境
type BrowsingContext interface {
	Open(ctx context.Context, url string, events Events) error
	Inject(script string) error
	Close() error
}

// ContextFactory 每個登入請求建立一個新的瀏覽環境
type ContextFactory func() BrowsingContext

// ChromeContext 以無頭 Chrome 實作的瀏覽環境
type ChromeContext struct {
	headless  bool
	userAgent string

	mu          sync.Mutex
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewChromeFactory 建立 Chrome 瀏覽環境工廠
func NewChromeFactory(headless bool, userAgent string) ContextFactory {
	return func() BrowsingContext {
		return &ChromeContext{headless: headless, userAgent: userAgent}
	}
}

// Open 啟動瀏覽器並導向網址
func (c *ChromeContext) Open(ctx context.Context, url string, events Events) error {
	if c.isClosed() {
		return ErrContextClosed
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.userAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		allocCancel()
		return ErrContextClosed
	}
	c.ctx, c.cancel, c.allocCancel = browserCtx, cancel, allocCancel
	c.mu.Unlock()

	// 事件回呼中不能直接呼叫 chromedp.Run，改在 goroutine 中處理
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLoadEventFired:
			go func() {
				var href string
				if err := chromedp.Run(browserCtx, chromedp.Location(&href)); err != nil {
					common.LogDebug("無法取得頁面網址", zap.Error(err))
					return
				}
				if events.OnLoadEnd != nil {
					events.OnLoadEnd(href)
				}
			}()
		case *runtime.EventBindingCalled:
			if e.Name == resultBinding && events.OnMessage != nil {
				payload := []byte(e.Payload)
				go events.OnMessage(payload)
			}
		}
	})

	if err := chromedp.Run(browserCtx,
		runtime.Enable(),
		runtime.AddBinding(resultBinding),
		chromedp.Navigate(url),
	); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func (c *ChromeContext) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Inject 在目前頁面執行腳本
func (c *ChromeContext) Inject(script string) error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return fmt.Errorf("browsing context not open")
	}
	var started bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &started)); err != nil {
		return fmt.Errorf("inject script: %w", err)
	}
	return nil
}

// Close 關閉瀏覽器
func (c *ChromeContext) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel, allocCancel := c.cancel, c.allocCancel
	c.ctx, c.cancel, c.allocCancel = nil, nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	return nil
}
