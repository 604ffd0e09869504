package auth

import (
	"errors"
	"fmt"
	"time"
)

// UnsupportedHostError 主機沒有登入設定
type UnsupportedHostError struct {
	Host string
}

func (e *UnsupportedHostError) Error() string {
	return fmt.Sprintf("authentication not supported for host %q", e.Host)
}

// AuthError 登入或取得頁面失敗
type AuthError struct {
	Host    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.Host, e.Message)
}

// TimeoutError 登入加取得頁面整體逾時
type TimeoutError struct {
	Kind  string
	Host  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out for %s after %s", e.Kind, e.Host, e.After)
}

var (
	ErrSuperseded    = errors.New("authentication request superseded by a newer request")
	ErrDestroyed     = errors.New("authentication flow destroyed")
	ErrContextClosed = errors.New("browsing context already closed")
)
