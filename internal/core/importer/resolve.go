package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

// Policy 無人值守時處理待確認項目的方式
type Policy struct {
	// AcceptFirst 有候選時採用第一個相似項目
	AcceptFirst bool
	// CreateMissing 沒有採用候選時以原名稱新建，否則略過
	CreateMissing bool
}

// Resolution 自動處理的統計
type Resolution struct {
	Accepted  int `json:"accepted"`
	Created   int `json:"created"`
	Dismissed int `json:"dismissed"`
}

// AutoResolve 依策略消化所有佇列，直到流程離開確認階段
func AutoResolve(ctx context.Context, w *workflow.Workflow, policy Policy) (Resolution, error) {
	var res Resolution
	for {
		switch q := w.CurrentQueue().(type) {
		case nil:
			common.LogInfo("自動確認完成",
				zap.String("phase", string(w.Phase())),
				zap.Int("accepted", res.Accepted),
				zap.Int("created", res.Created),
				zap.Int("dismissed", res.Dismissed),
			)
			return res, w.Err()
		case *workflow.TagQueue:
			for _, item := range q.Pending() {
				var err error
				switch {
				case policy.AcceptFirst && len(item.SimilarItems) > 0:
					err = q.OnValidated(item.Original, item.SimilarItems[0])
					res.Accepted++
				case policy.CreateMissing:
					err = q.OnValidated(item.Original, common.TagReference{Name: item.Original.Name})
					res.Created++
				default:
					err = q.OnDismissed(item.Original)
					res.Dismissed++
				}
				if err != nil {
					return res, err
				}
			}
			if err := q.OnComplete(ctx); err != nil {
				return res, err
			}
		case *workflow.IngredientQueue:
			for _, item := range q.Pending() {
				var err error
				switch {
				case policy.AcceptFirst && len(item.SimilarItems) > 0:
					err = q.OnValidated(item.Original, item.SimilarItems[0])
					res.Accepted++
				case policy.CreateMissing:
					err = q.OnValidated(item.Original, common.IngredientReference{
						Name:     item.Original.Name,
						Type:     item.Original.Type,
						Quantity: item.Original.Quantity,
						Unit:     item.Original.Unit,
					})
					res.Created++
				default:
					err = q.OnDismissed(item.Original)
					res.Dismissed++
				}
				if err != nil {
					return res, err
				}
			}
			if err := q.OnComplete(ctx); err != nil {
				return res, err
			}
		default:
			return res, fmt.Errorf("unknown queue %T", q)
		}
	}
}
