package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 訊息種類
const (
	MessageReady       = "ready"
	MessageLog         = "log"
	MessageError       = "error"
	MessageRPCResponse = "rpcResponse"
	MessageRPC         = "rpc"
)

// ErrorPayload 直譯器回報的錯誤
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// inboundMessage 直譯器送往宿主的訊息
type inboundMessage struct {
	Type    string          `json:"type"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	ID      int64           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// rpcRequest 宿主送往直譯器的呼叫
type rpcRequest struct {
	Type   string      `json:"type"`
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// RuntimeError 直譯器執行時拋出的錯誤
type RuntimeError struct {
	Type    string
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// TimeoutError 初始化或單次呼叫逾時
type TimeoutError struct {
	Kind   string // init / call
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Kind == "call" {
		return fmt.Sprintf("bridge call %s timed out after %s", e.Method, e.After)
	}
	return fmt.Sprintf("bridge %s timed out after %s", e.Kind, e.After)
}

var (
	ErrBridgeDestroyed      = errors.New("bridge destroyed")
	ErrBridgeNotInitialized = errors.New("bridge not initialized")
	ErrBridgeNotReady       = errors.New("bridge not ready")
)
