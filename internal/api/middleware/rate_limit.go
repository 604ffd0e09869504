package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// RateLimiter 單一來源的令牌桶
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewRateLimiter 創建新的限流器
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   float64(requests),
		capacity: float64(requests),
		rate:     float64(requests) / window.Seconds(),
		lastTime: time.Now(),
	}
}

// Allow 檢查是否允許請求
func (rl *RateLimiter) Allow() bool {
	return rl.allowAt(time.Now())
}

func (rl *RateLimiter) allowAt(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elapsed := now.Sub(rl.lastTime).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastTime = now
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// idleSince 最後使用早於 t
func (rl *RateLimiter) idleSince(t time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastTime.Before(t)
}

// ClientLimiter 以用戶端 IP 區分的限流器
type ClientLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*RateLimiter
	requests int
	window   time.Duration
	lastGC   time.Time
}

// NewClientLimiter 創建依 IP 限流的限流器
func NewClientLimiter(requests int, window time.Duration) *ClientLimiter {
	return &ClientLimiter{
		buckets:  make(map[string]*RateLimiter),
		requests: requests,
		window:   window,
		lastGC:   time.Now(),
	}
}

// Allow 檢查某個用戶端是否允許請求
func (cl *ClientLimiter) Allow(client string) bool {
	now := time.Now()
	cl.mu.Lock()
	bucket, ok := cl.buckets[client]
	if !ok {
		bucket = NewRateLimiter(cl.requests, cl.window)
		cl.buckets[client] = bucket
	}
	// 超過兩個時間窗未使用的桶必定已補滿，可直接移除
	if now.Sub(cl.lastGC) > cl.window {
		cutoff := now.Add(-2 * cl.window)
		for key, b := range cl.buckets {
			if key != client && b.idleSince(cutoff) {
				delete(cl.buckets, key)
			}
		}
		cl.lastGC = now
	}
	cl.mu.Unlock()

	return bucket.allowAt(now)
}

// Len 目前追蹤的用戶端數
func (cl *ClientLimiter) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.buckets)
}

// RateLimit 限流中間件
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	limiter := NewClientLimiter(requests, window)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			common.LogInfo("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)

			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrTooManyRequests.Code,
				Message: common.ErrTooManyRequests.Message,
			})
			return
		}

		c.Next()
	}
}
