package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// Recorder 匯入紀錄
type Recorder interface {
	RecordImportHistory(ctx context.Context, provider string, urls []string) error
	FilterNew(ctx context.Context, provider string, urls []string) ([]string, error)
}

// RedisHistory 以 Redis set 保存每個來源已匯入的網址
type RedisHistory struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisHistory 連線 Redis 並確認可用
func NewRedisHistory(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("匯入紀錄已連線 Redis", zap.String("addr", addr), zap.Duration("ttl", ttl))
	return NewRedisHistoryWithClient(client, ttl), nil
}

// NewRedisHistoryWithClient 使用既有的 Redis 客戶端
func NewRedisHistoryWithClient(client redis.Cmdable, ttl time.Duration) *RedisHistory {
	return &RedisHistory{client: client, ttl: ttl}
}

// RecordImportHistory 記錄已匯入的網址並刷新存活時間
func (h *RedisHistory) RecordImportHistory(ctx context.Context, provider string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	key := historyKey(provider)
	members := make([]interface{}, len(urls))
	for i, u := range urls {
		members[i] = u
	}

	pipe := h.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record import history: %w", err)
	}
	common.LogDebug("已記錄匯入網址", zap.String("provider", provider), zap.Int("count", len(urls)))
	return nil
}

// FilterNew 去除已匯入過的網址，保留輸入順序
func (h *RedisHistory) FilterNew(ctx context.Context, provider string, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	key := historyKey(provider)

	pipe := h.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(urls))
	for i, u := range urls {
		cmds[i] = pipe.SIsMember(ctx, key, u)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read import history: %w", err)
	}

	out := make([]string, 0, len(urls))
	for i, cmd := range cmds {
		if !cmd.Val() {
			out = append(out, urls[i])
		}
	}
	return out, nil
}

// Ping 確認 Redis 可用
func (h *RedisHistory) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Close 關閉 Redis 連線
func (h *RedisHistory) Close() error {
	if c, ok := h.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

func historyKey(provider string) string {
	return fmt.Sprintf("import:history:%s", provider)
}

// MemoryHistory 行程內的匯入紀錄
type MemoryHistory struct {
	mu   sync.Mutex
	seen map[string]map[string]bool
}

// NewMemoryHistory 創建行程內紀錄
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{seen: make(map[string]map[string]bool)}
}

// RecordImportHistory 記錄已匯入的網址
func (h *MemoryHistory) RecordImportHistory(ctx context.Context, provider string, urls []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.seen[provider]
	if !ok {
		set = make(map[string]bool)
		h.seen[provider] = set
	}
	for _, u := range urls {
		set[u] = true
	}
	return nil
}

// FilterNew 去除已匯入過的網址
func (h *MemoryHistory) FilterNew(ctx context.Context, provider string, urls []string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !h.seen[provider][u] {
			out = append(out, u)
		}
	}
	return out, nil
}

// PostCommit 寫入成功後記錄來源網址
func PostCommit(rec Recorder, provider string) func(ctx context.Context, committed []common.ScrapedRecipe) error {
	return func(ctx context.Context, committed []common.ScrapedRecipe) error {
		urls := make([]string, 0, len(committed))
		for _, r := range committed {
			if r.SourceURL != "" {
				urls = append(urls, r.SourceURL)
			}
		}
		return rec.RecordImportHistory(ctx, provider, urls)
	}
}
