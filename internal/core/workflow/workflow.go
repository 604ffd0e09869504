package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"recipe-importer/internal/core/validation"
	"recipe-importer/internal/pkg/common"
)

// Phase 匯入流程階段
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseTags         Phase = "tags"
	PhaseIngredients  Phase = "ingredients"
	PhaseImporting    Phase = "importing"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// Terminal 是否為終止階段
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

var (
	ErrEmptyBatch         = errors.New("no recipes to import")
	ErrNoValidIngredients = errors.New("no recipe has a valid ingredient after validation")
	ErrCommitFailure      = errors.New("failed to save recipes")
	ErrInvalidPhase       = errors.New("operation not allowed in current phase")
)

// CatalogReader 讀取既有食材與標籤目錄
type CatalogReader interface {
	ListIngredients(ctx context.Context) ([]common.IngredientReference, error)
	ListTags(ctx context.Context) ([]common.TagReference, error)
}

// Storage 儲存協作者
type Storage interface {
	AddMultipleRecipes(ctx context.Context, recipes []common.ScrapedRecipe) error
}

// PostCommitFunc 寫入成功後、進入完成階段前等待的回呼
type PostCommitFunc func(ctx context.Context, committed []common.ScrapedRecipe) error

// Options 匯入流程依賴
type Options struct {
	Engine        *validation.Engine
	Catalog       CatalogReader
	Storage       Storage
	PostCommit    PostCommitFunc
	OnPhaseChange func(from, to Phase)
}

// Workflow 匯入驗證流程
// 由單一前景呼叫者驅動，不可併發使用
type Workflow struct {
	opts Options

	phase         Phase
	err           error
	recipes       []common.ScrapedRecipe
	state         *validation.State
	importedCount int
}

// New 創建匯入驗證流程
func New(opts Options) *Workflow {
	if opts.Engine == nil {
		opts.Engine = validation.NewEngine(nil)
	}
	return &Workflow{opts: opts, phase: PhaseInitializing}
}

// Phase 目前階段
func (w *Workflow) Phase() Phase {
	return w.phase
}

// Err 進入錯誤階段的原因
func (w *Workflow) Err() error {
	return w.err
}

// ImportedCount 實際寫入的食譜數
func (w *Workflow) ImportedCount() int {
	return w.importedCount
}

// State 目前的驗證狀態，尚未初始化時為 nil
func (w *Workflow) State() *validation.State {
	return w.state
}

// Progress 待確認項目進度
func (w *Workflow) Progress() validation.Progress {
	return validation.GetValidationProgress(w.state)
}

// Start 以一批食譜啟動流程
// 計算完全相符項目後，依序進入標籤、食材或直接匯入階段
func (w *Workflow) Start(ctx context.Context, recipes []common.ScrapedRecipe) error {
	if w.phase != PhaseInitializing || w.state != nil {
		return fmt.Errorf("%w: start in %s", ErrInvalidPhase, w.phase)
	}
	if len(recipes) == 0 {
		return w.fail(ErrEmptyBatch)
	}

	w.recipes = make([]common.ScrapedRecipe, len(recipes))
	for i, r := range recipes {
		w.recipes[i] = r.Clone()
	}

	var existingIngredients []common.IngredientReference
	var existingTags []common.TagReference
	if w.opts.Catalog != nil {
		var err error
		if existingIngredients, err = w.opts.Catalog.ListIngredients(ctx); err != nil {
			return w.fail(fmt.Errorf("load ingredient catalog: %w", err))
		}
		if existingTags, err = w.opts.Catalog.ListTags(ctx); err != nil {
			return w.fail(fmt.Errorf("load tag catalog: %w", err))
		}
	}

	state, err := w.opts.Engine.Validate(ctx, w.recipes, existingIngredients, existingTags)
	if err != nil {
		return w.fail(fmt.Errorf("validate batch: %w", err))
	}
	w.state = state

	switch {
	case len(state.TagsToValidate) > 0:
		w.setPhase(PhaseTags)
		return nil
	case len(state.IngredientsToValidate) > 0:
		w.setPhase(PhaseIngredients)
		return nil
	default:
		return w.importRecipes(ctx)
	}
}

// OnTagValidated 使用者確認標籤對應
func (w *Workflow) OnTagValidated(original, resolved common.TagReference) error {
	if w.phase != PhaseTags {
		return fmt.Errorf("%w: tag validated in %s", ErrInvalidPhase, w.phase)
	}
	w.state.AddTagMapping(original.Name, resolved)
	return nil
}

// OnTagDismissed 使用者略過標籤，該標籤本次不會被寫入
func (w *Workflow) OnTagDismissed(original common.TagReference) error {
	if w.phase != PhaseTags {
		return fmt.Errorf("%w: tag dismissed in %s", ErrInvalidPhase, w.phase)
	}
	w.state.DismissTag(original.Name)
	return nil
}

// OnTagQueueComplete 標籤佇列結束
func (w *Workflow) OnTagQueueComplete(ctx context.Context) error {
	if w.phase != PhaseTags {
		return fmt.Errorf("%w: tag queue completed in %s", ErrInvalidPhase, w.phase)
	}
	if len(w.state.IngredientsToValidate) > 0 {
		w.setPhase(PhaseIngredients)
		return nil
	}
	return w.importRecipes(ctx)
}

// OnIngredientValidated 使用者確認食材對應
func (w *Workflow) OnIngredientValidated(original, resolved common.IngredientReference) error {
	if w.phase != PhaseIngredients {
		return fmt.Errorf("%w: ingredient validated in %s", ErrInvalidPhase, w.phase)
	}
	w.state.AddIngredientMapping(original.Name, resolved)
	return nil
}

// OnIngredientDismissed 使用者略過食材
func (w *Workflow) OnIngredientDismissed(original common.IngredientReference) error {
	if w.phase != PhaseIngredients {
		return fmt.Errorf("%w: ingredient dismissed in %s", ErrInvalidPhase, w.phase)
	}
	w.state.DismissIngredient(original.Name)
	return nil
}

// OnIngredientQueueComplete 食材佇列結束，進入匯入
func (w *Workflow) OnIngredientQueueComplete(ctx context.Context) error {
	if w.phase != PhaseIngredients {
		return fmt.Errorf("%w: ingredient queue completed in %s", ErrInvalidPhase, w.phase)
	}
	return w.importRecipes(ctx)
}

// importRecipes 套用對應、過濾無食材的食譜後寫入
func (w *Workflow) importRecipes(ctx context.Context) error {
	mapped := validation.ApplyMappingsToRecipes(w.recipes, w.state)
	ready := make([]common.ScrapedRecipe, 0, len(mapped))
	for _, r := range mapped {
		if len(r.Ingredients) > 0 {
			ready = append(ready, r)
		}
	}
	if len(ready) == 0 {
		return w.fail(ErrNoValidIngredients)
	}

	w.setPhase(PhaseImporting)
	if skipped := len(mapped) - len(ready); skipped > 0 {
		common.LogWarn("部分食譜沒有有效食材，將略過", zap.Int("skipped", skipped), zap.Int("ready", len(ready)))
	}

	if w.opts.Storage != nil {
		if err := w.opts.Storage.AddMultipleRecipes(ctx, ready); err != nil {
			return w.fail(fmt.Errorf("%w: %w", ErrCommitFailure, err))
		}
	}
	w.importedCount = len(ready)

	if w.opts.PostCommit != nil {
		if err := w.opts.PostCommit(ctx, ready); err != nil {
			// 食譜已寫入，回呼失敗不影響結果
			common.LogWarn("匯入後回呼失敗", zap.Error(err))
		}
	}

	w.setPhase(PhaseComplete)
	common.LogInfo("匯入完成", zap.Int("imported", w.importedCount), zap.Int("batch", len(w.recipes)))
	return nil
}

func (w *Workflow) fail(err error) error {
	w.err = err
	w.setPhase(PhaseError)
	common.LogError("匯入流程失敗", zap.Error(err))
	return err
}

func (w *Workflow) setPhase(next Phase) {
	prev := w.phase
	w.phase = next
	common.LogDebug("匯入階段變更", zap.String("from", string(prev)), zap.String("to", string(next)))
	if w.opts.OnPhaseChange != nil && prev != next {
		w.opts.OnPhaseChange(prev, next)
	}
}
