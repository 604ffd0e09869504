package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

func init() {
	gin.SetMode(gin.TestMode)
	common.SetLogger(zap.NewNop())
}

func serve(r *gin.Engine, method, path, body, ip string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func okHandler(c *gin.Context) { c.Status(http.StatusOK) }

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	start := rl.lastTime
	if !rl.allowAt(start) || !rl.allowAt(start) {
		t.Fatalf("capacity should allow two requests")
	}
	if rl.allowAt(start) {
		t.Fatalf("third request should be limited")
	}
	if !rl.allowAt(start.Add(600 * time.Millisecond)) {
		t.Fatalf("token should refill after half the window")
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, time.Minute))
	r.GET("/x", okHandler)

	if code := serve(r, http.MethodGet, "/x", "", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code := serve(r, http.MethodGet, "/x", "", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("second from same client = %d", code)
	}
	if code := serve(r, http.MethodGet, "/x", "", "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client = %d", code)
	}
}

func TestDeduplicationRejectsIdenticalPost(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	defer d.Close()
	r := gin.New()
	r.POST("/imports", d.Middleware(), okHandler)
	r.GET("/imports", d.Middleware(), okHandler)

	if code := serve(r, http.MethodPost, "/imports", `{"urls":["a"]}`, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code := serve(r, http.MethodPost, "/imports", `{"urls":["a"]}`, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("duplicate = %d", code)
	}
	if code := serve(r, http.MethodPost, "/imports", `{"urls":["b"]}`, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("different body = %d", code)
	}
	if code := serve(r, http.MethodGet, "/imports", "", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	if code := serve(r, http.MethodGet, "/imports", "", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("repeated get should pass, got %d", code)
	}
}

func TestDeduplicatorCleanup(t *testing.T) {
	d := NewDeduplicator(time.Second)
	defer d.Close()
	now := time.Now()
	d.seen("a", now)
	d.cleanup(now.Add(11 * time.Second))
	if len(d.requests) != 0 {
		t.Fatalf("expired fingerprint should be removed")
	}
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(8))
	r.POST("/x", okHandler)

	if code := serve(r, http.MethodPost, "/x", "short", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("small body = %d", code)
	}
	if code := serve(r, http.MethodPost, "/x", "much too long", "10.0.0.1"); code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body = %d", code)
	}
}

func TestBodySizeLimitSkipsBodylessMethodsAndZeroLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(4))
	r.GET("/x", okHandler)
	if code := serve(r, http.MethodGet, "/x", "ignored body", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("GET = %d", code)
	}

	unlimited := gin.New()
	unlimited.Use(BodySizeLimit(0))
	unlimited.POST("/x", okHandler)
	if code := serve(unlimited, http.MethodPost, "/x", "a body longer than four bytes", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("unlimited POST = %d", code)
	}
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	if code := serve(r, http.MethodGet, "/panic", "", "10.0.0.1"); code != http.StatusInternalServerError {
		t.Fatalf("code = %d", code)
	}
}
