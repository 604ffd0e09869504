package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/pkg/common"
)

// RecordCache 以網址為鍵的解析結果快取（TTL + 最少使用淘汰）
type RecordCache struct {
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	store map[string]cacheEntry
	stats cacheStats
	done  chan struct{}
	once  sync.Once
}

// cacheEntry 快取條目
type cacheEntry struct {
	record      parser.RecipeRecord
	expiresAt   time.Time
	lastAccess  time.Time
	accessCount int
}

type cacheStats struct {
	hits      int64
	misses    int64
	evictions int64
}

// NewRecordCache 創建快取，cleanupInterval 為 0 時不啟動背景清理
func NewRecordCache(maxSize int, ttl, cleanupInterval time.Duration) *RecordCache {
	if maxSize <= 0 {
		maxSize = 500
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &RecordCache{
		maxSize: maxSize,
		ttl:     ttl,
		store:   make(map[string]cacheEntry),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.startCleanup(cleanupInterval)
	}

	common.LogInfo("解析快取已初始化",
		zap.Int("最大容量", maxSize),
		zap.Duration("存活時間", ttl),
	)
	return c
}

// Get 取得快取的解析結果
func (c *RecordCache) Get(url string) (parser.RecipeRecord, bool) {
	key := cacheKey(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[key]
	if !ok {
		c.stats.misses++
		common.LogCacheMiss("record", url)
		return parser.RecipeRecord{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.store, key)
		c.stats.evictions++
		c.stats.misses++
		common.LogCacheMiss("record", url)
		return parser.RecipeRecord{}, false
	}

	entry.lastAccess = time.Now()
	entry.accessCount++
	c.store[key] = entry
	c.stats.hits++
	common.LogCacheHit("record", url)
	return entry.record.Clone(), true
}

// Set 寫入快取，容量不足時先清過期再淘汰最少使用的條目
func (c *RecordCache) Set(url string, record parser.RecipeRecord) {
	key := cacheKey(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxSize {
		c.cleanupLocked()
		if len(c.store) >= c.maxSize {
			c.evictLRULocked()
		}
	}

	now := time.Now()
	c.store[key] = cacheEntry{
		record:     record.Clone(),
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// Len 目前條目數
func (c *RecordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

func cacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("record:%s", hex.EncodeToString(hash[:]))
}

func (c *RecordCache) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.cleanupLocked()
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// cleanupLocked 清理過期條目
func (c *RecordCache) cleanupLocked() int {
	now := time.Now()
	count := 0
	for key, entry := range c.store {
		if now.After(entry.expiresAt) {
			delete(c.store, key)
			count++
			c.stats.evictions++
		}
	}
	if count > 0 {
		common.LogDebug("已清理過期快取",
			zap.Int("count", count),
			zap.Int("remaining_size", len(c.store)),
		)
	}
	return count
}

// evictLRULocked 淘汰存取次數最少、最久未使用的條目
func (c *RecordCache) evictLRULocked() {
	var oldestKey string
	var oldestAccess time.Time
	var lowestAccessCount int

	for key, entry := range c.store {
		if oldestKey == "" ||
			entry.accessCount < lowestAccessCount ||
			(entry.accessCount == lowestAccessCount && entry.lastAccess.Before(oldestAccess)) {
			oldestKey = key
			oldestAccess = entry.lastAccess
			lowestAccessCount = entry.accessCount
		}
	}

	if oldestKey != "" {
		delete(c.store, oldestKey)
		c.stats.evictions++
	}
}

// Stats 快取統計
func (c *RecordCache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := 0.0
	if total := c.stats.hits + c.stats.misses; total > 0 {
		ratio = float64(c.stats.hits) / float64(total)
	}
	return map[string]interface{}{
		"size":      len(c.store),
		"max_size":  c.maxSize,
		"hits":      c.stats.hits,
		"misses":    c.stats.misses,
		"evictions": c.stats.evictions,
		"hit_ratio": ratio,
	}
}

// Close 停止背景清理並清空快取
func (c *RecordCache) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]cacheEntry)
	common.LogInfo("解析快取已關閉",
		zap.Int64("命中次數", c.stats.hits),
		zap.Int64("未命中次數", c.stats.misses),
		zap.Int64("淘汰次數", c.stats.evictions),
	)
	return nil
}
