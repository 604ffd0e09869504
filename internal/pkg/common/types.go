package common

import (
	"regexp"
	"strings"
)

// IngredientReference 食材參照
// 來自爬取結果時 ID 為空；對應到目錄後帶有目錄 ID 與分類
type IngredientReference struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Type     string `json:"type,omitempty"` // 目錄分類，如 vegetable、meat
}

// TagReference 標籤參照
type TagReference struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ScrapedRecipe 一筆待匯入的食譜
type ScrapedRecipe struct {
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	SourceURL    string                `json:"source_url"`
	Image        string                `json:"image,omitempty"`
	Persons      int                   `json:"persons"`
	PrepMinutes  int                   `json:"prep_minutes,omitempty"`
	CookMinutes  int                   `json:"cook_minutes,omitempty"`
	Instructions []string              `json:"instructions,omitempty"`
	Ingredients  []IngredientReference `json:"ingredients"`
	Tags         []TagReference        `json:"tags"`
	Nutrition    map[string]string     `json:"nutrition,omitempty"`
}

// Clone 深拷貝，確保對應套用不會改到原始批次
func (r ScrapedRecipe) Clone() ScrapedRecipe {
	out := r
	out.Instructions = append([]string(nil), r.Instructions...)
	out.Ingredients = append([]IngredientReference(nil), r.Ingredients...)
	out.Tags = append([]TagReference(nil), r.Tags...)
	if r.Nutrition != nil {
		out.Nutrition = make(map[string]string, len(r.Nutrition))
		for k, v := range r.Nutrition {
			out.Nutrition[k] = v
		}
	}
	return out
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	qualifierPattern  = regexp.MustCompile(`\s*\([^)]*\)\s*`)
)

// NormalizeKey 產生比對用的正規化鍵：小寫、去頭尾空白、內部空白合併
func NormalizeKey(name string) string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), " ")
}

// StripQualifier 移除括號修飾語，如 "Chicken (boneless, skinless)" → "Chicken"
func StripQualifier(name string) string {
	return strings.TrimSpace(qualifierPattern.ReplaceAllString(name, " "))
}

// HasQualifier 判斷名稱是否帶括號修飾語
func HasQualifier(name string) bool {
	return qualifierPattern.MatchString(name)
}
