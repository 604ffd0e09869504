package parser

// ParsedIngredient 從頁面結構拆出的食材
type ParsedIngredient struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	Name     string `json:"name"`
}

// InstructionGroup 帶標題的步驟群組
type InstructionGroup struct {
	Title        string   `json:"title,omitempty"`
	Instructions []string `json:"instructions"`
}

// RecipeRecord 解析後的結構化食譜
// 視為不可變值：每個增強步驟都回傳新的副本
type RecipeRecord struct {
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	Ingredients        []string           `json:"ingredients"`
	ParsedIngredients  []ParsedIngredient `json:"parsedIngredients,omitempty"`
	Instructions       []string           `json:"instructionsList"`
	ParsedInstructions []InstructionGroup `json:"parsedInstructions,omitempty"`

	TotalTime    string `json:"totalTimeRaw,omitempty"`
	PrepTime     string `json:"prepTimeRaw,omitempty"`
	CookTime     string `json:"cookTimeRaw,omitempty"`
	TotalMinutes *int   `json:"totalTime,omitempty"`
	PrepMinutes  *int   `json:"prepTime,omitempty"`
	CookMinutes  *int   `json:"cookTime,omitempty"`

	Yields string `json:"yields,omitempty"`

	Image        string `json:"image,omitempty"`
	Host         string `json:"host"`
	CanonicalURL string `json:"canonicalUrl,omitempty"`
	SiteName     string `json:"siteName,omitempty"`
	Author       string `json:"author,omitempty"`
	Language     string `json:"language,omitempty"`

	Category string   `json:"category,omitempty"`
	Cuisine  string   `json:"cuisine,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	Nutrients        map[string]string `json:"nutrients,omitempty"`
	NutrientsPer100g map[string]string `json:"nutrientsPer100g,omitempty"`

	Ratings      float64 `json:"ratings,omitempty"`
	RatingsCount int     `json:"ratingsCount,omitempty"`

	// 頁面上另外標示的每 100g 熱量，供份量推算使用
	Per100gCalories float64 `json:"-"`
}

// Clone 深拷貝
func (r RecipeRecord) Clone() RecipeRecord {
	out := r
	out.Ingredients = cloneStrings(r.Ingredients)
	out.ParsedIngredients = append([]ParsedIngredient(nil), r.ParsedIngredients...)
	out.Instructions = cloneStrings(r.Instructions)
	if r.ParsedInstructions != nil {
		out.ParsedInstructions = make([]InstructionGroup, len(r.ParsedInstructions))
		for i, g := range r.ParsedInstructions {
			out.ParsedInstructions[i] = InstructionGroup{Title: g.Title, Instructions: cloneStrings(g.Instructions)}
		}
	}
	out.Keywords = cloneStrings(r.Keywords)
	out.Nutrients = cloneMap(r.Nutrients)
	out.NutrientsPer100g = cloneMap(r.NutrientsPer100g)
	out.TotalMinutes = cloneInt(r.TotalMinutes)
	out.PrepMinutes = cloneInt(r.PrepMinutes)
	out.CookMinutes = cloneInt(r.CookMinutes)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
