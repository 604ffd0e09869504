package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"recipe-importer/internal/core/validation"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

var (
	_ workflow.CatalogReader      = (*MemoryCatalog)(nil)
	_ workflow.Storage            = (*MemoryCatalog)(nil)
	_ validation.SimilarityFinder = (*MemoryCatalog)(nil)
	_ workflow.CatalogReader      = (*PostgresCatalog)(nil)
	_ workflow.Storage            = (*PostgresCatalog)(nil)
	_ validation.SimilarityFinder = (*PostgresCatalog)(nil)
)

// MemoryCatalog 行程內目錄，用於試跑與測試
type MemoryCatalog struct {
	mu          sync.RWMutex
	ingredients []common.IngredientReference
	tags        []common.TagReference
	recipes     []common.ScrapedRecipe
}

// NewMemoryCatalog 以既有食材與標籤建立目錄，缺少 ID 者自動產生
func NewMemoryCatalog(ingredients []common.IngredientReference, tags []common.TagReference) *MemoryCatalog {
	c := &MemoryCatalog{}
	for _, ing := range ingredients {
		c.ensureIngredientLocked(ing)
	}
	for _, tag := range tags {
		c.ensureTagLocked(tag)
	}
	return c
}

// ListIngredients 所有食材
func (c *MemoryCatalog) ListIngredients(ctx context.Context) ([]common.IngredientReference, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]common.IngredientReference(nil), c.ingredients...), nil
}

// ListTags 所有標籤
func (c *MemoryCatalog) ListTags(ctx context.Context) ([]common.TagReference, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]common.TagReference(nil), c.tags...), nil
}

// FindSimilarIngredients 名稱互相包含或有共同字詞者視為相似
func (c *MemoryCatalog) FindSimilarIngredients(ctx context.Context, name string) ([]common.IngredientReference, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := common.NormalizeKey(name)
	type scored struct {
		ref   common.IngredientReference
		score float64
	}
	var found []scored
	for _, ing := range c.ingredients {
		if s := similarity(key, common.NormalizeKey(ing.Name)); s > 0 {
			found = append(found, scored{ing, s})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })

	var out []common.IngredientReference
	for i := 0; i < len(found) && i < similarityLimit; i++ {
		out = append(out, found[i].ref)
	}
	return out, nil
}

// FindSimilarTags 名稱互相包含或有共同字詞者視為相似
func (c *MemoryCatalog) FindSimilarTags(ctx context.Context, name string) ([]common.TagReference, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := common.NormalizeKey(name)
	type scored struct {
		ref   common.TagReference
		score float64
	}
	var found []scored
	for _, tag := range c.tags {
		if s := similarity(key, common.NormalizeKey(tag.Name)); s > 0 {
			found = append(found, scored{tag, s})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })

	var out []common.TagReference
	for i := 0; i < len(found) && i < similarityLimit; i++ {
		out = append(out, found[i].ref)
	}
	return out, nil
}

// similarity 完全相同回傳 0（不算候選）；包含關係 1；否則為共同字詞比例
func similarity(a, b string) float64 {
	if a == "" || b == "" || a == b {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	wordsA := strings.Fields(a)
	wordsB := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		wordsB[w] = true
	}
	shared := 0
	for _, w := range wordsA {
		if len([]rune(w)) > 2 && wordsB[w] {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	total := len(wordsA)
	if len(wordsB) > total {
		total = len(wordsB)
	}
	return float64(shared) / float64(total)
}

// AddMultipleRecipes 保存食譜，沒有 ID 的食材與標籤依名稱新增或沿用
func (c *MemoryCatalog) AddMultipleRecipes(ctx context.Context, recipes []common.ScrapedRecipe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range recipes {
		stored := r.Clone()
		for i, ing := range stored.Ingredients {
			stored.Ingredients[i].ID = c.ensureIngredientLocked(ing).ID
		}
		for i, tag := range stored.Tags {
			stored.Tags[i].ID = c.ensureTagLocked(tag).ID
		}
		c.recipes = append(c.recipes, stored)
	}
	return nil
}

// Recipes 已保存的食譜
func (c *MemoryCatalog) Recipes() []common.ScrapedRecipe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.ScrapedRecipe, len(c.recipes))
	for i, r := range c.recipes {
		out[i] = r.Clone()
	}
	return out
}

func (c *MemoryCatalog) ensureIngredientLocked(ing common.IngredientReference) common.IngredientReference {
	key := common.NormalizeKey(ing.Name)
	for _, existing := range c.ingredients {
		if (ing.ID != "" && existing.ID == ing.ID) || common.NormalizeKey(existing.Name) == key {
			return existing
		}
	}
	entry := common.IngredientReference{ID: ing.ID, Name: ing.Name, Type: ing.Type}
	if entry.ID == "" {
		entry.ID = common.GenerateUUID()
	}
	c.ingredients = append(c.ingredients, entry)
	return entry
}

func (c *MemoryCatalog) ensureTagLocked(tag common.TagReference) common.TagReference {
	key := common.NormalizeKey(tag.Name)
	for _, existing := range c.tags {
		if (tag.ID != "" && existing.ID == tag.ID) || common.NormalizeKey(existing.Name) == key {
			return existing
		}
	}
	entry := common.TagReference{ID: tag.ID, Name: tag.Name}
	if entry.ID == "" {
		entry.ID = common.GenerateUUID()
	}
	c.tags = append(c.tags, entry)
	return entry
}
