package validation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"recipe-importer/internal/pkg/common"
)

// SimilarityFinder 模糊比對協作者，由目錄實作
type SimilarityFinder interface {
	FindSimilarIngredients(ctx context.Context, name string) ([]common.IngredientReference, error)
	FindSimilarTags(ctx context.Context, name string) ([]common.TagReference, error)
}

// Engine 批次驗證引擎
type Engine struct {
	finder SimilarityFinder
}

// NewEngine 創建批次驗證引擎
func NewEngine(finder SimilarityFinder) *Engine {
	return &Engine{finder: finder}
}

// Validate 將整批食譜引用的食材與標籤去重，並與既有目錄比對
// 完全相符者直接寫入對應表，其餘交給相似度協作者取得候選並排入待確認佇列
func (e *Engine) Validate(ctx context.Context, recipes []common.ScrapedRecipe, existingIngredients []common.IngredientReference, existingTags []common.TagReference) (*State, error) {
	state := newState()

	ingredientCatalog := make(map[string]common.IngredientReference, len(existingIngredients))
	for _, ing := range existingIngredients {
		key := common.NormalizeKey(ing.Name)
		if _, exists := ingredientCatalog[key]; !exists && key != "" {
			ingredientCatalog[key] = ing
		}
	}
	tagCatalog := make(map[string]common.TagReference, len(existingTags))
	for _, tag := range existingTags {
		key := common.NormalizeKey(tag.Name)
		if _, exists := tagCatalog[key]; !exists && key != "" {
			tagCatalog[key] = tag
		}
	}

	var ingredientKeys, tagKeys []string
	for _, recipe := range recipes {
		for _, ing := range recipe.Ingredients {
			key := common.NormalizeKey(ing.Name)
			if key == "" {
				continue
			}
			if _, seen := state.UniqueIngredients[key]; !seen {
				state.UniqueIngredients[key] = ing
				ingredientKeys = append(ingredientKeys, key)
			}
		}
		for _, tag := range recipe.Tags {
			key := common.NormalizeKey(tag.Name)
			if key == "" {
				continue
			}
			if _, seen := state.UniqueTags[key]; !seen {
				state.UniqueTags[key] = tag
				tagKeys = append(tagKeys, key)
			}
		}
	}

	var pendingIngredients []IngredientItem
	for _, key := range ingredientKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scraped := state.UniqueIngredients[key]
		if match, ok := lookupIngredient(ingredientCatalog, scraped.Name); ok {
			resolved := match
			resolved.Quantity = scraped.Quantity
			resolved.Unit = scraped.Unit
			state.ExactMatchIngredients = append(state.ExactMatchIngredients, resolved)
			state.IngredientMappings[key] = resolved
			continue
		}

		var similar []common.IngredientReference
		if e.finder != nil {
			found, err := e.finder.FindSimilarIngredients(ctx, scraped.Name)
			if err != nil {
				common.LogWarn("相似食材查詢失敗，視為無候選", zap.String("name", scraped.Name), zap.Error(err))
			}
			similar = found
		}
		pendingIngredients = append(pendingIngredients, IngredientItem{Key: key, Original: scraped, SimilarItems: similar})
	}

	var pendingTags []TagItem
	for _, key := range tagKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scraped := state.UniqueTags[key]
		if match, ok := lookupTag(tagCatalog, scraped.Name); ok {
			state.ExactMatchTags = append(state.ExactMatchTags, match)
			state.TagMappings[key] = match
			continue
		}

		var similar []common.TagReference
		if e.finder != nil {
			found, err := e.finder.FindSimilarTags(ctx, scraped.Name)
			if err != nil {
				common.LogWarn("相似標籤查詢失敗，視為無候選", zap.String("name", scraped.Name), zap.Error(err))
			}
			similar = found
		}
		pendingTags = append(pendingTags, TagItem{Key: key, Original: scraped, SimilarItems: similar})
	}

	// 無候選者先處理，組內維持原始順序
	sort.SliceStable(pendingIngredients, func(i, j int) bool {
		return len(pendingIngredients[i].SimilarItems) == 0 && len(pendingIngredients[j].SimilarItems) > 0
	})
	sort.SliceStable(pendingTags, func(i, j int) bool {
		return len(pendingTags[i].SimilarItems) == 0 && len(pendingTags[j].SimilarItems) > 0
	})
	state.IngredientsToValidate = pendingIngredients
	state.TagsToValidate = pendingTags

	common.LogInfo("批次驗證完成",
		zap.Int("recipes", len(recipes)),
		zap.Int("unique_ingredients", len(ingredientKeys)),
		zap.Int("exact_ingredients", len(state.ExactMatchIngredients)),
		zap.Int("pending_ingredients", len(pendingIngredients)),
		zap.Int("unique_tags", len(tagKeys)),
		zap.Int("exact_tags", len(state.ExactMatchTags)),
		zap.Int("pending_tags", len(pendingTags)),
	)

	return state, nil
}

// lookupIngredient 先以完整名稱比對，再以去除括號修飾語後的名稱比對
func lookupIngredient(catalog map[string]common.IngredientReference, name string) (common.IngredientReference, bool) {
	if match, ok := catalog[common.NormalizeKey(name)]; ok {
		return match, true
	}
	if common.HasQualifier(name) {
		if match, ok := catalog[common.NormalizeKey(common.StripQualifier(name))]; ok {
			return match, true
		}
	}
	return common.IngredientReference{}, false
}

func lookupTag(catalog map[string]common.TagReference, name string) (common.TagReference, bool) {
	if match, ok := catalog[common.NormalizeKey(name)]; ok {
		return match, true
	}
	if common.HasQualifier(name) {
		if match, ok := catalog[common.NormalizeKey(common.StripQualifier(name))]; ok {
			return match, true
		}
	}
	return common.TagReference{}, false
}
