package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/core/provider"
	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"
)

const probeTimeout = 2 * time.Second

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *provider.Status       `json:"queue,omitempty"`
	Sessions  *int                   `json:"sessions,omitempty"`
}

// QueueReporter 批次抓取狀態
type QueueReporter interface {
	Status() *provider.Status
}

// SessionCounter 進行中的匯入數
type SessionCounter interface {
	Len() int
}

// Check 就緒檢查項目
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthCheck 健康檢查處理器
func HealthCheck(c *gin.Context) {
	value, _ := c.Get("config")
	cfg, ok := value.(*config.Config)
	if !ok {
		common.LogError("Invalid configuration type in context")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Invalid configuration type",
		})
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}

	if queue, ok := c.Get("queue"); ok {
		if reporter, ok := queue.(QueueReporter); ok {
			response.Queue = reporter.Status()
		}
	}
	if sessions, ok := c.Get("sessions"); ok {
		if counter, ok := sessions.(SessionCounter); ok {
			n := counter.Len()
			response.Sessions = &n
		}
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器，逐項探測直譯器、資料庫與 Redis
func ReadinessCheck(c *gin.Context) {
	var checks []Check
	if v, ok := c.Get("readiness_checks"); ok {
		checks, _ = v.([]Check)
	}

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for _, check := range checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			common.LogWarn("就緒檢查失敗", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		results[check.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
	})
}

// LivenessCheck 存活檢查處理器
func LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "alive",
		"goroutines": runtime.NumGoroutine(),
	})
}
