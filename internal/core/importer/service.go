package importer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"recipe-importer/internal/core/history"
	"recipe-importer/internal/core/provider"
	"recipe-importer/internal/core/validation"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

var (
	ErrNoURLs           = errors.New("no urls to import")
	ErrNoRecipesFetched = errors.New("no recipe could be fetched")
)

// Fetcher 批次抓取食譜
type Fetcher interface {
	Fetch(ctx context.Context, req provider.BatchRequest) ([]provider.Result, error)
}

// Catalog 既有目錄、相似度查詢與儲存
type Catalog interface {
	workflow.CatalogReader
	workflow.Storage
	validation.SimilarityFinder
}

// Options 匯入服務依賴
type Options struct {
	Fetcher         Fetcher
	Catalog         Catalog
	History         history.Recorder
	DefaultPersons  int
	IgnoredPatterns []string
}

// Request 一次匯入請求
type Request struct {
	Provider        string
	URLs            []string
	DefaultPersons  int
	IgnoredPatterns []string
	// SkipImported 略過匯入紀錄中已存在的網址
	SkipImported bool
	// Credentials 只用於本次請求的帳密，以主機查詢
	Credentials provider.CredentialSource
}

// FailedURL 抓取失敗的網址
type FailedURL struct {
	URL   string `json:"url"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// Batch 一批已抓取並交給驗證流程的食譜
type Batch struct {
	Provider string
	Workflow *workflow.Workflow
	Recipes  []common.ScrapedRecipe
	Skipped  []string
	Failed   []FailedURL
}

// Service 串接抓取、匯入紀錄與驗證流程
type Service struct {
	opts Options
}

// NewService 創建匯入服務
func NewService(opts Options) *Service {
	if opts.DefaultPersons <= 0 {
		opts.DefaultPersons = 4
	}
	return &Service{opts: opts}
}

// Prepare 過濾已匯入網址並抓取食譜，不啟動驗證流程
func (s *Service) Prepare(ctx context.Context, req Request) (*Batch, error) {
	if len(req.URLs) == 0 {
		return nil, ErrNoURLs
	}
	batch := &Batch{Provider: providerName(req)}

	urls := req.URLs
	if req.SkipImported && s.opts.History != nil {
		fresh, err := s.opts.History.FilterNew(ctx, batch.Provider, urls)
		if err != nil {
			// 紀錄讀取失敗時全部重新匯入
			common.LogWarn("讀取匯入紀錄失敗", zap.String("provider", batch.Provider), zap.Error(err))
		} else {
			batch.Skipped = difference(urls, fresh)
			urls = fresh
		}
	}
	if len(urls) == 0 {
		return batch, nil
	}

	persons := req.DefaultPersons
	if persons <= 0 {
		persons = s.opts.DefaultPersons
	}
	patterns := req.IgnoredPatterns
	if patterns == nil {
		patterns = s.opts.IgnoredPatterns
	}

	fetchCtx := ctx
	if req.Credentials != nil {
		fetchCtx = provider.WithCredentials(ctx, req.Credentials)
	}
	results, err := s.opts.Fetcher.Fetch(fetchCtx, provider.BatchRequest{
		URLs:            urls,
		DefaultPersons:  persons,
		IgnoredPatterns: patterns,
	})
	if err != nil && results == nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	for _, r := range results {
		if r.Err != nil {
			batch.Failed = append(batch.Failed, FailedURL{URL: r.URL, Error: r.Err.Error(), Err: r.Err})
			continue
		}
		batch.Recipes = append(batch.Recipes, r.Recipe.Recipe)
	}
	if err != nil {
		return batch, err
	}

	common.LogInfo("食譜抓取完成",
		zap.String("provider", batch.Provider),
		zap.Int("fetched", len(batch.Recipes)),
		zap.Int("failed", len(batch.Failed)),
		zap.Int("skipped", len(batch.Skipped)),
	)
	return batch, nil
}

// Start 抓取食譜並以結果啟動驗證流程
// 沒有任何食譜可匯入時回傳 ErrNoRecipesFetched，Batch 仍包含失敗明細
func (s *Service) Start(ctx context.Context, req Request) (*Batch, error) {
	batch, err := s.Prepare(ctx, req)
	if err != nil {
		return batch, err
	}
	if len(batch.Recipes) == 0 {
		return batch, ErrNoRecipesFetched
	}

	batch.Workflow = s.NewWorkflow(batch.Provider)
	if err := batch.Workflow.Start(ctx, batch.Recipes); err != nil {
		return batch, err
	}
	return batch, nil
}

// NewWorkflow 以服務的目錄與匯入紀錄建立驗證流程
func (s *Service) NewWorkflow(providerName string) *workflow.Workflow {
	opts := workflow.Options{
		Engine:  validation.NewEngine(s.opts.Catalog),
		Catalog: s.opts.Catalog,
		Storage: s.opts.Catalog,
	}
	if s.opts.History != nil {
		opts.PostCommit = history.PostCommit(s.opts.History, providerName)
	}
	return workflow.New(opts)
}

func providerName(req Request) string {
	if req.Provider != "" {
		return req.Provider
	}
	return common.HostOf(req.URLs[0])
}

// difference all 中不在 keep 的項目，維持原順序
func difference(all, keep []string) []string {
	kept := make(map[string]bool, len(keep))
	for _, u := range keep {
		kept[u] = true
	}
	var out []string
	for _, u := range all {
		if !kept[u] {
			out = append(out, u)
		}
	}
	return out
}
