package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// Result 單一網址的批次結果
type Result struct {
	URL    string
	Recipe FetchedRecipe
	Err    error
}

// Status 批次抓取狀態
type Status struct {
	QueueLength    int `json:"queue_length"`
	ProcessedCount int `json:"processed_count"`
	FailedCount    int `json:"failed_count"`
	MaxQueueSize   int `json:"max_queue_size"`
	Workers        int `json:"workers"`
}

// BatchRequest 一次批次抓取的參數
type BatchRequest struct {
	URLs            []string
	DefaultPersons  int
	IgnoredPatterns []string
}

type job struct {
	index int
	url   string
}

// BatchFetcher 以固定數量的 worker 並行抓取多個網址
type BatchFetcher struct {
	provider     Provider
	workers      int
	maxQueueSize int

	queued    int64
	processed int64
	failed    int64
}

// NewBatchFetcher 創建批次抓取器
func NewBatchFetcher(provider Provider, workers, maxQueueSize int) *BatchFetcher {
	if workers <= 0 {
		workers = 4
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 100
	}
	return &BatchFetcher{provider: provider, workers: workers, maxQueueSize: maxQueueSize}
}

// Fetch 依輸入順序回傳每個網址的結果，單一網址失敗不影響其他網址
func (b *BatchFetcher) Fetch(ctx context.Context, req BatchRequest) ([]Result, error) {
	if len(req.URLs) > b.maxQueueSize {
		return nil, fmt.Errorf("batch of %d urls exceeds queue size %d", len(req.URLs), b.maxQueueSize)
	}

	results := make([]Result, len(req.URLs))
	jobs := make(chan job)
	var wg sync.WaitGroup

	atomic.AddInt64(&b.queued, int64(len(req.URLs)))
	defer atomic.AddInt64(&b.queued, -int64(len(req.URLs)))

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			res := Result{URL: j.url}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Recipe, res.Err = b.provider.FetchRecipe(ctx, j.url, req.DefaultPersons, req.IgnoredPatterns)
			}
			if res.Err != nil {
				atomic.AddInt64(&b.failed, 1)
				common.LogWarn("食譜抓取失敗", zap.String("url", j.url), zap.Error(res.Err))
			}
			atomic.AddInt64(&b.processed, 1)
			results[j.index] = res
		}
	}

	workers := b.workers
	if workers > len(req.URLs) {
		workers = len(req.URLs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

	for i, url := range req.URLs {
		jobs <- job{index: i, url: url}
	}
	close(jobs)
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	common.LogInfo("批次抓取完成",
		zap.Int("total", len(req.URLs)),
		zap.Int("succeeded", succeeded),
	)
	return results, ctx.Err()
}

// Status 目前狀態
func (b *BatchFetcher) Status() *Status {
	return &Status{
		QueueLength:    int(atomic.LoadInt64(&b.queued)),
		ProcessedCount: int(atomic.LoadInt64(&b.processed)),
		FailedCount:    int(atomic.LoadInt64(&b.failed)),
		MaxQueueSize:   b.maxQueueSize,
		Workers:        b.workers,
	}
}
