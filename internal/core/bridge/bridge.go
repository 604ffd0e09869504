package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

const (
	DefaultInitTimeout = 60 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

// Transport 雙向訊息通道，訊息為序列化後的 JSON
type Transport interface {
	Start(onMessage func([]byte)) error
	Send(data []byte) error
	Close() error
}

// Options 橋接設定
type Options struct {
	InitTimeout time.Duration
	CallTimeout time.Duration
}

type callResult struct {
	value string
	err   error
}

// Bridge 與內嵌直譯器之間的非同步 RPC 通道
type Bridge struct {
	transport Transport
	opts      Options

	mu          sync.Mutex
	nextID      int64
	pending     map[int64]chan callResult
	initialized bool
	ready       bool
	initTimer   *time.Timer
	initDone    chan struct{}
	initReady   bool
	initErr     error
}

// New 創建橋接實例，需呼叫 Init 後才能使用
func New(transport Transport, opts Options) *Bridge {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Bridge{
		transport: transport,
		opts:      opts,
		pending:   make(map[int64]chan callResult),
	}
}

// Init 啟動傳輸層並開始等待 ready 訊號
func (b *Bridge) Init() error {
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return nil
	}
	b.initialized = true
	b.ready = false
	b.initReady = false
	b.initErr = nil
	done := make(chan struct{})
	b.initDone = done
	b.initTimer = time.AfterFunc(b.opts.InitTimeout, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.initDone == done {
			common.LogWarn("直譯器初始化逾時", zap.Duration("timeout", b.opts.InitTimeout))
			b.settleInitLocked(false, nil)
		}
	})
	b.mu.Unlock()

	if err := b.transport.Start(b.HandleMessage); err != nil {
		b.mu.Lock()
		b.settleInitLocked(false, err)
		b.initialized = false
		b.mu.Unlock()
		return fmt.Errorf("start bridge transport: %w", err)
	}
	common.LogInfo("直譯器橋接已啟動，等待 ready")
	return nil
}

// settleInitLocked 初始化結果只決定一次
func (b *Bridge) settleInitLocked(ready bool, err error) {
	select {
	case <-b.initDone:
		return
	default:
	}
	if b.initTimer != nil {
		b.initTimer.Stop()
	}
	b.initReady = ready
	b.initErr = err
	close(b.initDone)
}

// WaitForReady 等待 ready 訊號
// 收到 ready 回傳 true；初始化時限內沒收到回傳 false；ready 之前收到 error 則回傳該錯誤
func (b *Bridge) WaitForReady(ctx context.Context) (bool, error) {
	b.mu.Lock()
	done := b.initDone
	b.mu.Unlock()
	if done == nil {
		return false, ErrBridgeNotInitialized
	}

	select {
	case <-done:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initReady, b.initErr
}

// Ready 是否已收到 ready 訊號
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Call 呼叫直譯器方法，timeout 為 0 時使用預設值
func (b *Bridge) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = b.opts.CallTimeout
	}

	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return "", ErrBridgeNotInitialized
	}
	if !b.ready {
		b.mu.Unlock()
		return "", ErrBridgeNotReady
	}
	b.nextID++
	id := b.nextID
	ch := make(chan callResult, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	if params == nil {
		params = map[string]interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{Type: MessageRPC, ID: id, Method: method, Params: params})
	if err != nil {
		b.dropPending(id)
		return "", fmt.Errorf("encode rpc %s: %w", method, err)
	}
	if err := b.transport.Send(payload); err != nil {
		b.dropPending(id)
		return "", fmt.Errorf("send rpc %s: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-timer.C:
		b.dropPending(id)
		return "", &TimeoutError{Kind: "call", Method: method, After: timeout}
	case <-ctx.Done():
		b.dropPending(id)
		return "", ctx.Err()
	}
}

func (b *Bridge) dropPending(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// PendingCalls 尚未完成的呼叫數
func (b *Bridge) PendingCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HandleMessage 處理直譯器送來的一則訊息
func (b *Bridge) HandleMessage(data []byte) {
	var msg inboundMessage
	if err := common.ParseJSONBytes(data, &msg); err != nil {
		common.LogWarn("無法解析直譯器訊息", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	switch msg.Type {
	case MessageReady:
		b.mu.Lock()
		if b.initialized {
			b.ready = true
			b.settleInitLocked(true, nil)
		}
		b.mu.Unlock()
		common.LogInfo("直譯器已就緒")

	case MessageLog:
		common.LogAt(msg.Level, "直譯器日誌", zap.String("message", msg.Message))

	case MessageError:
		rtErr := &RuntimeError{Message: "unknown runtime error"}
		if msg.Error != nil {
			rtErr = &RuntimeError{Type: msg.Error.Type, Message: msg.Error.Message}
		}
		b.mu.Lock()
		if b.initialized && !b.ready {
			b.settleInitLocked(false, rtErr)
		}
		b.mu.Unlock()
		common.LogError("直譯器回報錯誤", zap.Error(rtErr))

	case MessageRPCResponse:
		b.mu.Lock()
		ch, ok := b.pending[msg.ID]
		if ok {
			delete(b.pending, msg.ID)
		}
		b.mu.Unlock()
		if !ok {
			common.LogWarn("收到未知呼叫 id 的回應，忽略", zap.Int64("id", msg.ID))
			return
		}
		if msg.Error != nil {
			ch <- callResult{err: &RuntimeError{Type: msg.Error.Type, Message: msg.Error.Message}}
			return
		}
		ch <- callResult{value: decodeResult(msg.Result)}

	default:
		common.LogDebug("忽略未知訊息類型", zap.String("type", msg.Type))
	}
}

// decodeResult 結果通常是 JSON 字串；其他型別原樣回傳
func decodeResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Destroy 關閉橋接並以 ErrBridgeDestroyed 拒絕所有未完成呼叫
func (b *Bridge) Destroy() error {
	b.mu.Lock()
	if b.initTimer != nil {
		b.initTimer.Stop()
	}
	if b.initDone != nil {
		b.settleInitLocked(false, ErrBridgeDestroyed)
	}
	pending := b.pending
	b.pending = make(map[int64]chan callResult)
	wasInitialized := b.initialized
	b.ready = false
	b.initialized = false
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: ErrBridgeDestroyed}
	}
	if len(pending) > 0 {
		common.LogWarn("橋接關閉，拒絕未完成呼叫", zap.Int("pending", len(pending)))
	}

	if !wasInitialized {
		return nil
	}
	return b.transport.Close()
}
