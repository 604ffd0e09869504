package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"recipe-importer/internal/pkg/common"
)

// findRecipeObject 在所有 JSON-LD 區塊中尋找 Recipe 物件
// 支援單一物件、物件陣列、以及包在 @graph 內一層的形式
func findRecipeObject(doc *goquery.Document) map[string]interface{} {
	var found map[string]interface{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var data interface{}
		if err := common.ParseJSON(raw, &data); err != nil {
			return true
		}
		found = recipeIn(data)
		return found == nil
	})
	return found
}

func recipeIn(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		if isRecipeType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"].([]interface{}); ok {
			for _, item := range graph {
				if obj, ok := item.(map[string]interface{}); ok && isRecipeType(obj["@type"]) {
					return obj
				}
			}
		}
	case []interface{}:
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if isRecipeType(obj["@type"]) {
				return obj
			}
			if nested := recipeIn(obj); nested != nil {
				return nested
			}
		}
	}
	return nil
}

func isRecipeType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

// asString 將 JSON-LD 值轉為字串；陣列取第一個非空值，物件取 name / text / url
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		for _, item := range t {
			if s := asString(item); s != "" {
				return s
			}
		}
	case map[string]interface{}:
		for _, key := range []string{"name", "text", "url", "@id"} {
			if s := asString(t[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

// asStringList 將字串或陣列轉為字串切片
func asStringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := asString(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

// joinedString 類別、料理種類可能是陣列，以逗號串接
func joinedString(v interface{}) string {
	return strings.Join(asStringList(v), ", ")
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	case string:
		return extractNumericValue(t)
	case map[string]interface{}:
		return asFloat(t["@value"])
	}
	return 0
}

// keywordsFrom 關鍵字可能是逗號分隔字串或陣列
func keywordsFrom(v interface{}) []string {
	var raw []string
	if s, ok := v.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = asStringList(v)
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// imageFrom 取得非佔位圖的圖片網址
func imageFrom(v interface{}) string {
	var url string
	switch t := v.(type) {
	case string:
		url = t
	case []interface{}:
		if len(t) > 0 {
			url = imageFrom(t[0])
		}
	case map[string]interface{}:
		url = asString(t["url"])
	}
	url = strings.TrimSpace(url)
	if strings.Contains(strings.ToLower(url), "placeholder") {
		return ""
	}
	return url
}

// instructionsFrom 解析 recipeInstructions：字串、字串陣列、HowToStep、HowToSection
func instructionsFrom(v interface{}) ([]string, []InstructionGroup) {
	var steps []string
	var groups []InstructionGroup

	switch t := v.(type) {
	case string:
		for _, line := range strings.Split(t, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				steps = append(steps, line)
			}
		}
	case []interface{}:
		for _, item := range t {
			switch step := item.(type) {
			case string:
				if s := strings.TrimSpace(step); s != "" {
					steps = append(steps, s)
				}
			case map[string]interface{}:
				if asString(step["@type"]) == "HowToSection" {
					sectionSteps, _ := instructionsFrom(step["itemListElement"])
					steps = append(steps, sectionSteps...)
					if len(sectionSteps) > 0 {
						groups = append(groups, InstructionGroup{Title: asString(step["name"]), Instructions: sectionSteps})
					}
					continue
				}
				text := asString(step["text"])
				if text == "" {
					text = asString(step["name"])
				}
				if text != "" {
					steps = append(steps, text)
				}
			}
		}
	case map[string]interface{}:
		return instructionsFrom([]interface{}{t})
	}
	return steps, groups
}

// nutrientsFrom 讀取 NutritionInformation，忽略 @ 開頭的欄位
func nutrientsFrom(v interface{}) map[string]string {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for key, value := range obj {
		if strings.HasPrefix(key, "@") {
			continue
		}
		if s := asString(value); s != "" {
			out[key] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
