package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// Deduplicator 拒絕時間窗內內容完全相同的重複請求，例如重複送出同一批匯入
type Deduplicator struct {
	mu       sync.Mutex
	requests map[string]time.Time
	window   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewDeduplicator 創建去重器並啟動定期清理
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = time.Second
	}
	d := &Deduplicator{
		requests: make(map[string]time.Time),
		window:   window,
		done:     make(chan struct{}),
	}
	go d.cleanupLoop(10 * time.Minute)
	return d
}

// Close 停止清理
func (d *Deduplicator) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Deduplicator) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.cleanup(time.Now())
		case <-d.done:
			return
		}
	}
}

func (d *Deduplicator) cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.requests {
		if now.Sub(t) > 10*d.window {
			delete(d.requests, k)
		}
	}
}

// seen 記錄指紋，時間窗內已出現過回傳 true
func (d *Deduplicator) seen(fingerprint string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.requests[fingerprint]; ok && now.Sub(last) <= d.window {
		return true
	}
	d.requests[fingerprint] = now
	return false
}

// Middleware 只處理 POST；指紋由用戶端、路徑與請求體雜湊組成
func (d *Deduplicator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		fingerprint := c.ClientIP() + ":" + c.Request.URL.Path
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogError("Failed to read request body", zap.Error(err))
				c.Next()
				return
			}
			hash := sha256.Sum256(body)
			fingerprint += ":" + hex.EncodeToString(hash[:])
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		if d.seen(fingerprint, time.Now()) {
			common.LogInfo("Duplicate request rejected",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrTooManyRequests.Code,
				Message: common.ErrTooManyRequests.Message,
			})
			return
		}

		c.Next()
	}
}
