package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// DefaultTimeout 登入加取得頁面的整體時限
const DefaultTimeout = 60 * time.Second

type outcome struct {
	html string
	err  error
}

// request 單一進行中的登入請求
type request struct {
	id        uint64
	host      HostConfig
	targetURL string
	username  string
	password  string

	browser  BrowsingContext
	timer    *time.Timer
	injected bool
	settled  bool
	done     chan outcome
}

// Flow 以短暫瀏覽環境登入並取得需要登入的頁面
// 同時只處理一個請求，新請求會取代舊請求
type Flow struct {
	catalog    *Catalog
	newContext ContextFactory
	timeout    time.Duration

	mu      sync.Mutex
	nextID  uint64
	pending *request
}

// NewFlow 創建登入流程
func NewFlow(catalog *Catalog, factory ContextFactory, timeout time.Duration) *Flow {
	if catalog == nil {
		catalog = NewCatalog(DefaultHosts...)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Flow{catalog: catalog, newContext: factory, timeout: timeout}
}

// SupportedHosts 支援登入的主機
func (f *Flow) SupportedHosts() []string {
	return f.catalog.Hosts()
}

// IsSupported 網址的主機是否有登入設定
func (f *Flow) IsSupported(url string) bool {
	_, ok := f.catalog.Lookup(url)
	return ok
}

// FetchAuthenticatedHTML 登入後取得頁面 HTML
func (f *Flow) FetchAuthenticatedHTML(ctx context.Context, url, username, password string) (string, error) {
	host, ok := f.catalog.Lookup(url)
	if !ok {
		return "", &UnsupportedHostError{Host: common.HostOf(url)}
	}

	req := &request{
		host:      host,
		targetURL: url,
		username:  username,
		password:  password,
		done:      make(chan outcome, 1),
	}

	f.mu.Lock()
	f.nextID++
	req.id = f.nextID
	previous := f.pending
	f.pending = req
	f.mu.Unlock()

	if previous != nil {
		common.LogInfo("新的登入請求取代進行中的請求",
			zap.String("host", previous.host.Host),
			zap.Uint64("superseded", previous.id),
		)
		f.settle(previous, outcome{err: ErrSuperseded})
	}

	browser := f.newContext()
	f.mu.Lock()
	if req.settled {
		f.mu.Unlock()
		_ = browser.Close()
		res := <-req.done
		return res.html, res.err
	}
	req.browser = browser
	req.timer = time.AfterFunc(f.timeout, func() {
		f.settle(req, outcome{err: &TimeoutError{Kind: "auth", Host: host.Host, After: f.timeout}})
	})
	f.mu.Unlock()

	common.LogInfo("開始登入流程", zap.String("host", host.Host), zap.Uint64("request", req.id))

	events := Events{
		OnLoadEnd: func(landedURL string) { f.onLoadEnd(req, landedURL) },
		OnMessage: func(data []byte) { f.onMessage(req, data) },
	}
	go func() {
		if err := browser.Open(ctx, host.LoginURL, events); err != nil {
			f.settle(req, outcome{err: &AuthError{Host: host.Host, Message: err.Error()}})
		}
		// 請求可能在開啟途中就已結束，此時 settle 的關閉發生在瀏覽器啟動之前
		f.mu.Lock()
		settled := req.settled
		f.mu.Unlock()
		if settled {
			_ = browser.Close()
		}
	}()

	select {
	case res := <-req.done:
		return res.html, res.err
	case <-ctx.Done():
		f.settle(req, outcome{err: ctx.Err()})
		res := <-req.done
		return res.html, res.err
	}
}

// onLoadEnd 每個請求最多注入一次腳本
func (f *Flow) onLoadEnd(req *request, landedURL string) {
	f.mu.Lock()
	if f.pending != req || req.settled || req.injected {
		f.mu.Unlock()
		return
	}
	req.injected = true
	browser := req.browser
	f.mu.Unlock()

	var script string
	if common.PathOf(landedURL) != req.host.LoginPath {
		common.LogInfo("已有登入狀態，直接取得頁面", zap.String("host", req.host.Host))
		script = fetchOnlyScript(req.host, req.targetURL)
	} else {
		script = loginScript(req.host, req.targetURL, req.username, req.password)
	}

	if err := browser.Inject(script); err != nil {
		f.settle(req, outcome{err: &AuthError{Host: req.host.Host, Message: err.Error()}})
	}
}

func (f *Flow) onMessage(req *request, data []byte) {
	var msg authMessage
	if err := common.ParseJSONBytes(data, &msg); err != nil {
		common.LogWarn("無法解析登入訊息", zap.Error(err))
		return
	}
	switch msg.Type {
	case messageAuthResult:
		f.settle(req, outcome{html: msg.HTML})
	case messageAuthError:
		f.settle(req, outcome{err: &AuthError{Host: req.host.Host, Message: msg.Message}})
	default:
		common.LogDebug("忽略未知登入訊息", zap.String("type", msg.Type))
	}
}

// settle 結束請求並釋放瀏覽環境，只生效一次
func (f *Flow) settle(req *request, res outcome) {
	f.mu.Lock()
	if req.settled {
		f.mu.Unlock()
		return
	}
	req.settled = true
	if f.pending == req {
		f.pending = nil
	}
	timer, browser := req.timer, req.browser
	f.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			common.LogDebug("關閉瀏覽環境失敗", zap.Error(err))
		}
	}
	if res.err != nil {
		common.LogWarn("登入流程失敗", zap.String("host", req.host.Host), zap.Error(res.err))
	} else {
		common.LogInfo("登入流程完成", zap.String("host", req.host.Host), zap.Int("body_length", len(res.html)))
	}
	req.done <- res
}

// Pending 是否有進行中的請求
func (f *Flow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

// Destroy 拒絕進行中的請求
func (f *Flow) Destroy() {
	f.mu.Lock()
	req := f.pending
	f.pending = nil
	f.mu.Unlock()
	if req != nil {
		f.settle(req, outcome{err: ErrDestroyed})
	}
}
