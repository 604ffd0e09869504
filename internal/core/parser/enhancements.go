package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Pass 單一增強步驟，必須是純函式
type Pass struct {
	Name      string
	DependsOn []string
	Apply     func(RecipeRecord) RecipeRecord
}

// Pipeline 依序執行的增強步驟
type Pipeline struct {
	passes []Pass
}

// NewPipeline 建立增強流程，依賴的步驟必須排在前面
func NewPipeline(passes ...Pass) (*Pipeline, error) {
	seen := make(map[string]bool, len(passes))
	for _, p := range passes {
		if p.Name == "" || p.Apply == nil {
			return nil, fmt.Errorf("enhancement pass must have a name and an apply function")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate enhancement pass %q", p.Name)
		}
		for _, dep := range p.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("enhancement pass %q depends on %q which does not run before it", p.Name, dep)
			}
		}
		seen[p.Name] = true
	}
	return &Pipeline{passes: passes}, nil
}

// Run 對副本依序套用所有步驟，不修改輸入
func (p *Pipeline) Run(record RecipeRecord) RecipeRecord {
	out := record.Clone()
	for _, pass := range p.passes {
		out = pass.Apply(out.Clone())
	}
	return out
}

// Names 步驟名稱（依執行順序）
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name
	}
	return names
}

// 內建步驟
var (
	DecodeEntitiesPass   = Pass{Name: "decode-entities", Apply: decodeEntities}
	DurationsPass        = Pass{Name: "durations", Apply: normalizeDurations}
	YieldsPass           = Pass{Name: "yields", Apply: normalizeYields}
	ServingSizePass      = Pass{Name: "serving-size", Apply: inferServingSize}
	NutritionPer100gPass = Pass{Name: "nutrition-per-100g", DependsOn: []string{"serving-size"}, Apply: nutritionPer100g}
	TitleCasePass        = Pass{Name: "title-case", Apply: titleCase}
	CleanDescriptionPass = Pass{Name: "clean-description", DependsOn: []string{"decode-entities"}, Apply: cleanDescription}
	CleanKeywordsPass    = Pass{Name: "clean-keywords", DependsOn: []string{"decode-entities", "title-case"}, Apply: cleanKeywords}
)

var defaultPipeline = mustPipeline(
	DecodeEntitiesPass,
	DurationsPass,
	YieldsPass,
	ServingSizePass,
	NutritionPer100gPass,
	TitleCasePass,
	CleanDescriptionPass,
	CleanKeywordsPass,
)

func mustPipeline(passes ...Pass) *Pipeline {
	p, err := NewPipeline(passes...)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPipeline 預設增強流程
func DefaultPipeline() *Pipeline {
	return defaultPipeline
}

// Enhance 以預設流程增強食譜
func Enhance(record RecipeRecord) RecipeRecord {
	return defaultPipeline.Run(record)
}

func decodeEntities(r RecipeRecord) RecipeRecord {
	r.Title = unescape(r.Title)
	r.Description = unescape(r.Description)
	r.Author = unescape(r.Author)
	r.Category = unescape(r.Category)
	r.Cuisine = unescape(r.Cuisine)
	r.SiteName = unescape(r.SiteName)
	r.Yields = unescape(r.Yields)
	unescapeAll(r.Ingredients)
	unescapeAll(r.Instructions)
	unescapeAll(r.Keywords)
	for i := range r.ParsedIngredients {
		r.ParsedIngredients[i].Name = unescape(r.ParsedIngredients[i].Name)
		r.ParsedIngredients[i].Unit = unescape(r.ParsedIngredients[i].Unit)
	}
	for i := range r.ParsedInstructions {
		r.ParsedInstructions[i].Title = unescape(r.ParsedInstructions[i].Title)
		unescapeAll(r.ParsedInstructions[i].Instructions)
	}
	for k, v := range r.Nutrients {
		r.Nutrients[k] = unescape(v)
	}
	return r
}

// unescape 部分網站會重複編碼（&amp;eacute;），最多解兩層
func unescape(s string) string {
	for i := 0; i < 2 && strings.Contains(s, "&"); i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	return strings.TrimSpace(s)
}

func unescapeAll(list []string) {
	for i := range list {
		list[i] = unescape(list[i])
	}
}

var isoDurationPattern = regexp.MustCompile(`(?i)^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDurationMinutes "PT1H30M" → 90；純數字視為分鐘
func ParseDurationMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n, true
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || strings.EqualFold(s, "P") || strings.EqualFold(s, "PT") {
		return 0, false
	}
	days, _ := strconv.Atoi(m[1])
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds, _ := strconv.ParseFloat(m[4], 64)
	total := days*24*60 + hours*60 + minutes + int(math.Round(seconds/60))
	return total, true
}

func normalizeDurations(r RecipeRecord) RecipeRecord {
	set := func(raw string, target **int) {
		if *target != nil {
			return
		}
		if minutes, ok := ParseDurationMinutes(raw); ok {
			*target = &minutes
		}
	}
	set(r.TotalTime, &r.TotalMinutes)
	set(r.PrepTime, &r.PrepMinutes)
	set(r.CookTime, &r.CookMinutes)
	if r.TotalMinutes == nil && r.PrepMinutes != nil && r.CookMinutes != nil {
		total := *r.PrepMinutes + *r.CookMinutes
		r.TotalMinutes = &total
	}
	return r
}

var integerPattern = regexp.MustCompile(`\d+`)

// YieldServings 從份量文字取出人數，"Serves 4-6" → 4
func YieldServings(yields string) (int, bool) {
	m := integerPattern.FindString(yields)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func normalizeYields(r RecipeRecord) RecipeRecord {
	n, ok := YieldServings(r.Yields)
	if !ok {
		return r
	}
	if n == 1 {
		r.Yields = "1 serving"
	} else {
		r.Yields = fmt.Sprintf("%d servings", n)
	}
	return r
}

// inferServingSize 以每份熱量與每 100g 熱量推算份量克數
func inferServingSize(r RecipeRecord) RecipeRecord {
	if len(r.Nutrients) == 0 || r.Nutrients["servingSize"] != "" {
		return r
	}
	perPortion := extractNumericValue(r.Nutrients["calories"])
	if perPortion <= 0 || r.Per100gCalories <= 0 {
		return r
	}
	grams := int(math.Round(perPortion / r.Per100gCalories * 100))
	if grams > 0 {
		r.Nutrients["servingSize"] = fmt.Sprintf("%dg", grams)
	}
	return r
}

var unitSuffixPattern = regexp.MustCompile(`^[\d.,\s]+(.*)$`)

// nutritionPer100g 將每份營養素換算為每 100g
func nutritionPer100g(r RecipeRecord) RecipeRecord {
	serving := strings.ToLower(strings.TrimSpace(r.Nutrients["servingSize"]))
	if serving == "" {
		return r
	}
	if m := unitSuffixPattern.FindStringSubmatch(serving); m != nil {
		if unit := strings.TrimSpace(m[1]); unit != "" && unit != "g" && unit != "grams" && unit != "gram" {
			return r
		}
	}
	grams := extractNumericValue(serving)
	if grams <= 0 {
		return r
	}

	per100 := make(map[string]string, len(r.Nutrients))
	for key, value := range r.Nutrients {
		if key == "servingSize" {
			continue
		}
		amount := extractNumericValue(value)
		if amount <= 0 {
			continue
		}
		unit := ""
		if m := unitSuffixPattern.FindStringSubmatch(strings.TrimSpace(value)); m != nil {
			unit = strings.TrimSpace(m[1])
		}
		scaled := math.Round(amount*100/grams*10) / 10
		formatted := strconv.FormatFloat(scaled, 'f', -1, 64)
		if unit != "" {
			formatted += " " + unit
		}
		per100[key] = formatted
	}
	if len(per100) > 0 {
		r.NutrientsPer100g = per100
	}
	return r
}

// titleCase 全小寫標題只將第一個字母轉大寫
func titleCase(r RecipeRecord) RecipeRecord {
	if r.Title == "" || r.Title != strings.ToLower(r.Title) {
		return r
	}
	first, size := utf8.DecodeRuneInString(r.Title)
	r.Title = string(unicode.ToUpper(first)) + r.Title[size:]
	return r
}

// cleanDescription 描述其實只是食材清單時捨棄
func cleanDescription(r RecipeRecord) RecipeRecord {
	if r.Description == "" || len(r.Ingredients) == 0 {
		return r
	}
	cleaned := strings.ToLower(r.Description)
	for _, ing := range r.Ingredients {
		if name := ingredientBaseName(ing); name != "" {
			cleaned = strings.ReplaceAll(cleaned, name, "")
		}
	}
	alnum := 0
	for _, c := range cleaned {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			alnum++
		}
	}
	if alnum < 20 {
		r.Description = ""
	}
	return r
}

// cleanKeywords 移除等於標題或食材名稱的關鍵字
func cleanKeywords(r RecipeRecord) RecipeRecord {
	if len(r.Keywords) == 0 {
		return r
	}
	ingredientNames := make(map[string]bool, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		if name := ingredientBaseName(ing); name != "" {
			ingredientNames[name] = true
		}
	}
	title := strings.ToLower(r.Title)

	var kept []string
	for _, kw := range r.Keywords {
		lower := strings.ToLower(kw)
		if lower == title || ingredientNames[lower] {
			continue
		}
		kept = append(kept, kw)
	}
	r.Keywords = kept
	return r
}

func ingredientBaseName(ing string) string {
	name, _, _ := strings.Cut(strings.ToLower(ing), "(")
	return strings.TrimSpace(name)
}
