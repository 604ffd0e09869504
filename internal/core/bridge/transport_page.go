package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// 頁面端約定：呼叫 window.__bridgeSend(string) 送出訊息，宿主以 window.__bridgeReceive(string) 投遞
const (
	pageSendBinding = "__bridgeSend"
	pageReceiveFunc = "window.__bridgeReceive"
)

// PageTransport 在無頭瀏覽器頁面中執行直譯器
type PageTransport struct {
	pageURL  string
	headless bool

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewPageTransport 創建頁面傳輸層
func NewPageTransport(pageURL string, headless bool) *PageTransport {
	return &PageTransport{pageURL: pageURL, headless: headless}
}

// Start 開啟瀏覽器並載入直譯器頁面
func (t *PageTransport) Start(onMessage func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx != nil {
		return fmt.Errorf("page transport already started")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", t.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == pageSendBinding {
			onMessage([]byte(e.Payload))
		}
	})

	if err := chromedp.Run(ctx,
		runtime.Enable(),
		runtime.AddBinding(pageSendBinding),
		chromedp.Navigate(t.pageURL),
	); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("load interpreter page %s: %w", t.pageURL, err)
	}

	t.ctx, t.cancel, t.allocCancel = ctx, cancel, allocCancel
	common.LogInfo("直譯器頁面已載入", zap.String("url", t.pageURL))
	return nil
}

// Send 將訊息以字串字面值投遞給頁面
func (t *PageTransport) Send(data []byte) error {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx == nil {
		return fmt.Errorf("page transport not started")
	}

	expr := fmt.Sprintf("(() => { %s(%s); return true; })()", pageReceiveFunc, common.JSStringLiteral(string(data)))
	var delivered bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &delivered)); err != nil {
		return fmt.Errorf("deliver message to page: %w", err)
	}
	return nil
}

// Close 關閉瀏覽器
func (t *PageTransport) Close() error {
	t.mu.Lock()
	cancel, allocCancel := t.cancel, t.allocCancel
	t.ctx, t.cancel, t.allocCancel = nil, nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	return nil
}
