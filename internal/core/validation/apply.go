package validation

import (
	"recipe-importer/internal/pkg/common"
)

// ApplyMappingsToRecipes 以對應表替換每筆食譜的食材與標籤
// 找不到對應的引用直接從該食譜移除；食材保留各食譜自己的份量與單位
func ApplyMappingsToRecipes(recipes []common.ScrapedRecipe, s *State) []common.ScrapedRecipe {
	out := make([]common.ScrapedRecipe, 0, len(recipes))
	for _, recipe := range recipes {
		mapped := recipe.Clone()

		mapped.Ingredients = mapped.Ingredients[:0]
		seenIngredients := make(map[string]struct{})
		for _, ing := range recipe.Ingredients {
			entity, ok := s.IngredientMappings[common.NormalizeKey(ing.Name)]
			if !ok {
				continue
			}
			entity.Quantity = ing.Quantity
			entity.Unit = ing.Unit
			id := identity(entity.ID, entity.Name)
			if _, dup := seenIngredients[id]; dup {
				continue
			}
			seenIngredients[id] = struct{}{}
			mapped.Ingredients = append(mapped.Ingredients, entity)
		}

		mapped.Tags = mapped.Tags[:0]
		seenTags := make(map[string]struct{})
		for _, tag := range recipe.Tags {
			entity, ok := s.TagMappings[common.NormalizeKey(tag.Name)]
			if !ok {
				continue
			}
			id := identity(entity.ID, entity.Name)
			if _, dup := seenTags[id]; dup {
				continue
			}
			seenTags[id] = struct{}{}
			mapped.Tags = append(mapped.Tags, entity)
		}

		out = append(out, mapped)
	}
	return out
}

// identity 同一食譜中以目錄 ID 去重；新建項目沒有 ID 時改用名稱
func identity(id, name string) string {
	if id != "" {
		return "id:" + id
	}
	return "name:" + common.NormalizeKey(name)
}
