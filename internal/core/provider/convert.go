package provider

import (
	"fmt"
	"regexp"
	"strings"

	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/pkg/common"
)

// CompilePatterns 編譯忽略標籤的樣式（不分大小寫）
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignored pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// ToScrapedRecipe 將解析結果轉為待匯入的食譜
func ToScrapedRecipe(record parser.RecipeRecord, sourceURL string, defaultPersons int, ignored []*regexp.Regexp) common.ScrapedRecipe {
	recipe := common.ScrapedRecipe{
		Title:        record.Title,
		Description:  record.Description,
		SourceURL:    sourceURL,
		Image:        record.Image,
		Persons:      defaultPersons,
		Instructions: instructionsOf(record),
		Ingredients:  ingredientsOf(record),
		Tags:         tagsOf(record, ignored),
	}
	if n, ok := parser.YieldServings(record.Yields); ok {
		recipe.Persons = n
	}
	if record.PrepMinutes != nil {
		recipe.PrepMinutes = *record.PrepMinutes
	}
	if record.CookMinutes != nil {
		recipe.CookMinutes = *record.CookMinutes
	}
	if len(record.Nutrients) > 0 {
		recipe.Nutrition = make(map[string]string, len(record.Nutrients))
		for k, v := range record.Nutrients {
			recipe.Nutrition[k] = v
		}
	}
	return recipe
}

func instructionsOf(record parser.RecipeRecord) []string {
	if len(record.ParsedInstructions) == 0 {
		return append([]string(nil), record.Instructions...)
	}
	var out []string
	for _, group := range record.ParsedInstructions {
		for i, step := range group.Instructions {
			if i == 0 && group.Title != "" {
				step = group.Title + " : " + step
			}
			out = append(out, step)
		}
	}
	return out
}

// ingredientsOf 優先使用頁面結構拆出的食材，否則從文字行拆出數量與單位
func ingredientsOf(record parser.RecipeRecord) []common.IngredientReference {
	if len(record.ParsedIngredients) > 0 {
		out := make([]common.IngredientReference, 0, len(record.ParsedIngredients))
		for _, ing := range record.ParsedIngredients {
			if strings.TrimSpace(ing.Name) == "" {
				continue
			}
			out = append(out, common.IngredientReference{Name: ing.Name, Quantity: ing.Quantity, Unit: ing.Unit})
		}
		return out
	}

	out := make([]common.IngredientReference, 0, len(record.Ingredients))
	for _, line := range record.Ingredients {
		qty, unit, name := parser.ParseKitchenItem(line)
		if name == "" {
			continue
		}
		out = append(out, common.IngredientReference{Name: name, Quantity: qty, Unit: unit})
	}
	return out
}

// tagsOf 關鍵字、分類與料理類型合併為標籤，去除重複與忽略樣式
func tagsOf(record parser.RecipeRecord, ignored []*regexp.Regexp) []common.TagReference {
	candidates := append([]string(nil), record.Keywords...)
	for _, extra := range []string{record.Category, record.Cuisine} {
		candidates = append(candidates, strings.Split(extra, ",")...)
	}

	seen := make(map[string]bool, len(candidates))
	var out []common.TagReference
	for _, c := range candidates {
		name := strings.TrimSpace(c)
		key := common.NormalizeKey(name)
		if key == "" || seen[key] || matchesAny(name, ignored) {
			continue
		}
		seen[key] = true
		out = append(out, common.TagReference{Name: name})
	}
	return out
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
