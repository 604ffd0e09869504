package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu        sync.Mutex
	onMessage func([]byte)
	started   int
	closed    int
	sent      chan rpcRequest
	startErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan rpcRequest, 16)}
}

func (f *fakeTransport) Start(onMessage func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.onMessage = onMessage
	f.started++
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	f.sent <- req
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) emit(msg string) {
	f.mu.Lock()
	cb := f.onMessage
	f.mu.Unlock()
	cb([]byte(msg))
}

func readyBridge(t *testing.T, opts Options) (*Bridge, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	b := New(tr, opts)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tr.emit(`{"type":"ready"}`)
	ok, err := b.WaitForReady(context.Background())
	if !ok || err != nil {
		t.Fatalf("WaitForReady = %v, %v", ok, err)
	}
	return b, tr
}

func respond(b *Bridge, id int64, result string) {
	b.HandleMessage([]byte(fmt.Sprintf(`{"type":"rpcResponse","id":%d,"result":%q}`, id, result)))
}

func TestCallsResolveByIDInAnyOrder(t *testing.T) {
	b, tr := readyBridge(t, Options{})

	type outcome struct {
		method string
		value  string
		err    error
	}
	results := make(chan outcome, 3)
	for _, m := range []string{"a", "b", "c"} {
		go func(method string) {
			v, err := b.Call(context.Background(), method, nil, time.Second)
			results <- outcome{method, v, err}
		}(m)
	}

	reqs := make([]rpcRequest, 0, 3)
	for i := 0; i < 3; i++ {
		reqs = append(reqs, <-tr.sent)
	}
	seen := map[int64]bool{}
	for _, r := range reqs {
		if r.ID < 1 || r.ID > 3 || seen[r.ID] {
			t.Fatalf("unexpected id %d", r.ID)
		}
		seen[r.ID] = true
	}

	for i := len(reqs) - 1; i >= 0; i-- {
		respond(b, reqs[i].ID, "result-"+reqs[i].Method)
	}

	for i := 0; i < 3; i++ {
		o := <-results
		if o.err != nil {
			t.Fatalf("call %s: %v", o.method, o.err)
		}
		if o.value != "result-"+o.method {
			t.Fatalf("call %s got %q", o.method, o.value)
		}
	}
	if n := b.PendingCalls(); n != 0 {
		t.Fatalf("pending calls = %d", n)
	}
}

func TestReadinessDecidedOnce(t *testing.T) {
	tr := newFakeTransport()
	b := New(tr, Options{InitTimeout: 20 * time.Millisecond})
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ok, err := b.WaitForReady(context.Background())
	if ok || err != nil {
		t.Fatalf("expected timeout outcome false/nil, got %v/%v", ok, err)
	}

	tr.emit(`{"type":"ready"}`)
	ok, err = b.WaitForReady(context.Background())
	if ok || err != nil {
		t.Fatalf("late ready must not change outcome, got %v/%v", ok, err)
	}
}

func TestReadyThenErrorKeepsReady(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	tr.emit(`{"type":"error","error":{"type":"ValueError","message":"boom"}}`)
	ok, err := b.WaitForReady(context.Background())
	if !ok || err != nil {
		t.Fatalf("WaitForReady = %v, %v", ok, err)
	}
}

func TestErrorBeforeReadyRejectsWait(t *testing.T) {
	tr := newFakeTransport()
	b := New(tr, Options{})
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tr.emit(`{"type":"error","error":{"type":"ImportError","message":"missing module"}}`)

	ok, err := b.WaitForReady(context.Background())
	if ok {
		t.Fatalf("expected not ready")
	}
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Type != "ImportError" {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestCallBeforeInit(t *testing.T) {
	b := New(newFakeTransport(), Options{})
	if _, err := b.Call(context.Background(), "x", nil, 0); !errors.Is(err, ErrBridgeNotInitialized) {
		t.Fatalf("expected ErrBridgeNotInitialized, got %v", err)
	}
	if _, err := b.WaitForReady(context.Background()); !errors.Is(err, ErrBridgeNotInitialized) {
		t.Fatalf("expected ErrBridgeNotInitialized, got %v", err)
	}
}

func TestCallTimeout(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	_, err := b.Call(context.Background(), "slow", nil, 10*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) || te.Kind != "call" || te.Method != "slow" {
		t.Fatalf("expected call TimeoutError, got %v", err)
	}
	req := <-tr.sent
	respond(b, req.ID, "late")
	if n := b.PendingCalls(); n != 0 {
		t.Fatalf("pending calls = %d", n)
	}
}

func TestRuntimeErrorResponse(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	done := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), "scrape", nil, time.Second)
		done <- err
	}()
	req := <-tr.sent
	b.HandleMessage([]byte(fmt.Sprintf(`{"type":"rpcResponse","id":%d,"error":{"type":"KeyError","message":"title"}}`, req.ID)))

	var rtErr *RuntimeError
	if err := <-done; !errors.As(err, &rtErr) || rtErr.Message != "title" {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestUnmatchedResponseIgnored(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	done := make(chan string, 1)
	go func() {
		v, _ := b.Call(context.Background(), "m", nil, time.Second)
		done <- v
	}()
	req := <-tr.sent
	respond(b, req.ID+100, "stray")
	respond(b, req.ID, "ok")
	if v := <-done; v != "ok" {
		t.Fatalf("got %q", v)
	}
}

func TestDestroyRejectsPending(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.Call(context.Background(), "m", nil, time.Second)
			done <- err
		}()
	}
	<-tr.sent
	<-tr.sent

	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; !errors.Is(err, ErrBridgeDestroyed) {
			t.Fatalf("expected ErrBridgeDestroyed, got %v", err)
		}
	}
	if b.Ready() {
		t.Fatalf("bridge should not be ready after destroy")
	}
	if tr.closed != 1 {
		t.Fatalf("transport closed %d times", tr.closed)
	}
	if _, err := b.Call(context.Background(), "m", nil, 0); !errors.Is(err, ErrBridgeNotInitialized) {
		t.Fatalf("expected ErrBridgeNotInitialized, got %v", err)
	}
}

func TestIDsNotReusedAcrossReinit(t *testing.T) {
	b, tr := readyBridge(t, Options{})
	go b.Call(context.Background(), "first", nil, time.Second)
	first := <-tr.sent
	respond(b, first.ID, "")

	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tr.emit(`{"type":"ready"}`)

	go b.Call(context.Background(), "second", nil, time.Second)
	second := <-tr.sent
	respond(b, second.ID, "")
	if second.ID <= first.ID {
		t.Fatalf("id reused: first=%d second=%d", first.ID, second.ID)
	}
}

func TestInitStartFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.startErr = errors.New("no interpreter")
	b := New(tr, Options{})
	if err := b.Init(); err == nil {
		t.Fatalf("expected start error")
	}
	if _, err := b.Call(context.Background(), "m", nil, 0); !errors.Is(err, ErrBridgeNotInitialized) {
		t.Fatalf("expected ErrBridgeNotInitialized, got %v", err)
	}
}

func TestDecodeResult(t *testing.T) {
	if got := decodeResult(json.RawMessage(`"{\"a\":1}"`)); got != `{"a":1}` {
		t.Fatalf("string result = %q", got)
	}
	if got := decodeResult(json.RawMessage(`{"a":1}`)); got != `{"a":1}` {
		t.Fatalf("object result = %q", got)
	}
	if got := decodeResult(nil); got != "" {
		t.Fatalf("empty result = %q", got)
	}
}
