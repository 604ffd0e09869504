package workflow

import (
	"context"

	"recipe-importer/internal/core/validation"
	"recipe-importer/internal/pkg/common"
)

// QueueKind 佇列種類
type QueueKind string

const (
	QueueTag        QueueKind = "Tag"
	QueueIngredient QueueKind = "Ingredient"
)

// Queue 依序交給使用者確認的佇列，實作只有 *TagQueue 與 *IngredientQueue
type Queue interface {
	Kind() QueueKind
	Len() int
	OnComplete(ctx context.Context) error
	isQueue()
}

// TagQueue 標籤確認佇列
type TagQueue struct {
	Items []validation.TagItem
	w     *Workflow
}

func (q *TagQueue) Kind() QueueKind { return QueueTag }
func (q *TagQueue) Len() int        { return len(q.Items) }
func (q *TagQueue) isQueue()        {}

// Pending 尚未確認或略過的項目
func (q *TagQueue) Pending() []validation.TagItem {
	var out []validation.TagItem
	for _, item := range q.Items {
		_, mapped := q.w.state.TagMappings[item.Key]
		_, dismissed := q.w.state.DismissedTags[item.Key]
		if !mapped && !dismissed {
			out = append(out, item)
		}
	}
	return out
}

func (q *TagQueue) OnValidated(original, resolved common.TagReference) error {
	return q.w.OnTagValidated(original, resolved)
}

func (q *TagQueue) OnDismissed(original common.TagReference) error {
	return q.w.OnTagDismissed(original)
}

func (q *TagQueue) OnComplete(ctx context.Context) error {
	return q.w.OnTagQueueComplete(ctx)
}

// IngredientQueue 食材確認佇列
type IngredientQueue struct {
	Items []validation.IngredientItem
	w     *Workflow
}

func (q *IngredientQueue) Kind() QueueKind { return QueueIngredient }
func (q *IngredientQueue) Len() int        { return len(q.Items) }
func (q *IngredientQueue) isQueue()        {}

// Pending 尚未確認或略過的項目
func (q *IngredientQueue) Pending() []validation.IngredientItem {
	var out []validation.IngredientItem
	for _, item := range q.Items {
		_, mapped := q.w.state.IngredientMappings[item.Key]
		_, dismissed := q.w.state.DismissedIngredients[item.Key]
		if !mapped && !dismissed {
			out = append(out, item)
		}
	}
	return out
}

func (q *IngredientQueue) OnValidated(original, resolved common.IngredientReference) error {
	return q.w.OnIngredientValidated(original, resolved)
}

func (q *IngredientQueue) OnDismissed(original common.IngredientReference) error {
	return q.w.OnIngredientDismissed(original)
}

func (q *IngredientQueue) OnComplete(ctx context.Context) error {
	return q.w.OnIngredientQueueComplete(ctx)
}

// CurrentQueue 目前階段對應的佇列，非確認階段回傳 nil
func (w *Workflow) CurrentQueue() Queue {
	switch w.phase {
	case PhaseTags:
		return &TagQueue{Items: w.state.TagsToValidate, w: w}
	case PhaseIngredients:
		return &IngredientQueue{Items: w.state.IngredientsToValidate, w: w}
	default:
		return nil
	}
}
