package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"recipe-importer/internal/pkg/common"
)

var (
	authURLPatterns   = []string{"/login", "/signin", "/sign-in", "/auth", "/connexion", "/account/login", "/user/login"}
	authTitleKeywords = []string{"login", "sign in", "connexion", "se connecter", "log in", "anmelden", "iniciar sesión"}

	quantityUnitPattern = regexp.MustCompile(`^([\d.,/]+)\s*(.*)$`)
	stepTitlePrefix     = regexp.MustCompile(`(?i)^(\d+[.:\-\s]+|[ÉéEe]tape\s*\d*[.:\-\s]*|Step\s*\d*[.:\-\s]*)`)
	numberPattern       = regexp.MustCompile(`[\d.]+`)

	instructionContainerIDs     = []string{"preparation-steps", "recipe-steps", "instructions", "method", "directions"}
	instructionContainerClasses = []string{"recipe-steps", "instructions", "method", "directions", "preparation"}
	stepClasses                 = map[string]bool{"step": true, "toggle": true, "instruction": true, "etape": true, "step-instructions": true}
	kcalLabels                  = []string{"Énergie (kCal)", "Énergie (kcal)", "Calories", "kcal", "kCal"}

	// 數量後方可視為單位的字詞；其他字詞歸入食材名稱
	kitchenUnits = map[string]bool{
		"g": true, "gr": true, "kg": true, "mg": true, "ml": true, "cl": true, "dl": true, "l": true, "x": true,
		"càs": true, "cas": true, "càc": true, "cac": true, "cs": true, "cc": true,
		"cuillère": true, "cuillères": true, "pincée": true, "pincées": true, "gousse": true, "gousses": true,
		"tranche": true, "tranches": true, "sachet": true, "sachets": true, "boîte": true, "boîtes": true,
		"botte": true, "bottes": true, "pièce": true, "pièces": true, "brin": true, "brins": true,
		"feuille": true, "feuilles": true, "poignée": true, "poignées": true, "verre": true, "verres": true,
		"tbsp": true, "tsp": true, "cup": true, "cups": true, "oz": true, "lb": true, "lbs": true,
		"pinch": true, "clove": true, "cloves": true, "slice": true, "slices": true, "can": true, "cans": true,
	}
)

// Parse 從頁面 HTML 解析食譜
func Parse(htmlContent, pageURL string) (RecipeRecord, error) {
	return ParseRedirected(htmlContent, pageURL, "")
}

// ParseRedirected 解析食譜；finalURL 為跟隨轉址後的網址，用於判斷是否被導向登入頁
func ParseRedirected(htmlContent, pageURL, finalURL string) (RecipeRecord, error) {
	if finalURL == "" {
		finalURL = pageURL
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return RecipeRecord{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if err := detectAuthRequired(doc, finalURL, pageURL); err != nil {
		return RecipeRecord{}, err
	}

	obj := findRecipeObject(doc)
	if obj == nil {
		return RecipeRecord{}, &NoRecipeFoundError{URL: pageURL}
	}

	record := RecipeRecord{
		Title:       asString(obj["name"]),
		Description: asString(obj["description"]),
		Ingredients: asStringList(firstPresent(obj, "recipeIngredient", "ingredients")),
		TotalTime:   asString(obj["totalTime"]),
		PrepTime:    asString(obj["prepTime"]),
		CookTime:    asString(obj["cookTime"]),
		Yields:      asString(obj["recipeYield"]),
		Image:       imageFrom(obj["image"]),
		Host:        common.HostOf(pageURL),
		Author:      asString(obj["author"]),
		Language:    asString(obj["inLanguage"]),
		Category:    joinedString(obj["recipeCategory"]),
		Cuisine:     joinedString(obj["recipeCuisine"]),
		Keywords:    keywordsFrom(obj["keywords"]),
		Nutrients:   nutrientsFrom(obj["nutrition"]),
	}
	record.Instructions, record.ParsedInstructions = instructionsFrom(obj["recipeInstructions"])

	if rating, ok := obj["aggregateRating"].(map[string]interface{}); ok {
		record.Ratings = asFloat(rating["ratingValue"])
		count := asFloat(rating["ratingCount"])
		if count == 0 {
			count = asFloat(rating["reviewCount"])
		}
		record.RatingsCount = int(count)
	}

	record.CanonicalURL = canonicalURL(doc, pageURL)
	record.SiteName, _ = doc.Find(`meta[property="og:site_name"]`).First().Attr("content")
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		record.Language = strings.TrimSpace(lang)
	}

	if len(record.Keywords) == 0 {
		record.Keywords = keywordsFromNextData(doc)
	}
	if record.Image == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
			record.Image = imageFrom(og)
		}
	}

	record.ParsedIngredients = ExtractStructuredIngredients(doc)
	if groups := extractStructuredInstructions(doc); groups != nil {
		record.ParsedInstructions = groups
	}
	record.Per100gCalories = findPer100gCalories(doc)

	return record, nil
}

func firstPresent(obj map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// DetectAuthRequired 檢查是否被導向登入頁，或頁面標題含登入關鍵字
func DetectAuthRequired(htmlContent, finalURL, originalURL string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}
	return detectAuthRequired(doc, finalURL, originalURL)
}

func detectAuthRequired(doc *goquery.Document, finalURL, originalURL string) error {
	host := common.HostOf(originalURL)

	finalPath := strings.ToLower(common.PathOf(finalURL))
	for _, pattern := range authURLPatterns {
		if strings.Contains(finalPath, pattern) {
			return &AuthenticationRequiredError{Host: host}
		}
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if title == "" {
		return nil
	}
	for _, keyword := range authTitleKeywords {
		if strings.Contains(title, keyword) {
			return &AuthenticationRequiredError{Host: host}
		}
	}
	return nil
}

func canonicalURL(doc *goquery.Document, pageURL string) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if og, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return pageURL
}

// keywordsFromNextData 從 Next.js 的 __NEXT_DATA__ 中尋找 tags / labels
func keywordsFromNextData(doc *goquery.Document) []string {
	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil
	}
	var data interface{}
	if err := common.ParseJSON(raw, &data); err != nil {
		return nil
	}
	return findTags(data, 0)
}

func findTags(data interface{}, depth int) []string {
	if depth > 10 {
		return nil
	}
	switch v := data.(type) {
	case map[string]interface{}:
		for _, key := range []string{"tags", "labels"} {
			list, ok := v[key].([]interface{})
			if !ok {
				continue
			}
			var result []string
			for _, tag := range list {
				if !isUserFacingTag(tag) {
					continue
				}
				switch t := tag.(type) {
				case string:
					if t != "" {
						result = append(result, t)
					}
				case map[string]interface{}:
					if name := asString(t["name"]); name != "" {
						result = append(result, name)
					}
				}
			}
			if len(result) > 0 {
				return result
			}
		}
		for _, value := range v {
			if found := findTags(value, depth+1); found != nil {
				return found
			}
		}
	case []interface{}:
		for _, item := range v {
			if found := findTags(item, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

// isUserFacingTag 字串標籤直接保留，物件標籤須標記 displayLabel
func isUserFacingTag(tag interface{}) bool {
	obj, ok := tag.(map[string]interface{})
	if !ok {
		return true
	}
	return obj["displayLabel"] == true || obj["display_label"] == true
}

// ExtractStructuredIngredients 從 ul.ingredient-list（及 ul.kitchen-list）拆出份量、單位與名稱
// 結構不符時回傳 nil，由呼叫端改用原始字串
func ExtractStructuredIngredients(doc *goquery.Document) []ParsedIngredient {
	list := doc.Find("ul.ingredient-list").First()
	if list.Length() == 0 {
		return nil
	}

	var results []ParsedIngredient
	structured := true
	list.ChildrenFiltered("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		spans := li.ChildrenFiltered("span")
		if spans.Length() < 2 {
			structured = false
			return false
		}
		quantity, unit := SplitQuantityUnit(strings.TrimSpace(spans.Eq(0).Text()))
		results = append(results, ParsedIngredient{
			Quantity: quantity,
			Unit:     unit,
			Name:     CleanIngredientName(textWithSeparator(spans.Eq(1))),
		})
		return true
	})
	if !structured {
		return nil
	}

	doc.Find("ul.kitchen-list").First().ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		text := strings.TrimSpace(li.Text())
		if text == "" {
			return
		}
		quantity, unit, name := ParseKitchenItem(text)
		results = append(results, ParsedIngredient{Quantity: quantity, Unit: unit, Name: name})
	})

	if len(results) == 0 {
		return nil
	}
	return results
}

// SplitQuantityUnit "375 g" → ("375", "g")；"0,25" → ("0.25", "")；"pièce" → ("", "pièce")
func SplitQuantityUnit(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	if m := quantityUnitPattern.FindStringSubmatch(text); m != nil {
		return strings.ReplaceAll(m[1], ",", "."), strings.TrimSpace(m[2])
	}
	return "", text
}

// ParseKitchenItem "2 càs huile d'olive" → ("2", "càs", "huile d'olive")；"2 eggs" → ("2", "", "eggs")；"sel" → ("", "", "sel")
func ParseKitchenItem(text string) (string, string, string) {
	text = strings.TrimSpace(text)
	m := quantityUnitPattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[2]) == "" {
		return "", "", CleanIngredientName(text)
	}
	quantity := strings.ReplaceAll(m[1], ",", ".")

	fields := strings.Fields(m[2])
	if len(fields) > 1 && kitchenUnits[strings.ToLower(fields[0])] {
		return quantity, fields[0], CleanIngredientName(strings.Join(fields[1:], " "))
	}
	return quantity, "", CleanIngredientName(strings.Join(fields, " "))
}

// CleanIngredientName 去除不換行空白並合併多餘空白，保留括號內容
func CleanIngredientName(name string) string {
	name = strings.ReplaceAll(name, " ", " ")
	return strings.Join(strings.Fields(name), " ")
}

// textWithSeparator 以空白串接所有文字節點，避免巢狀標籤的文字黏在一起
func textWithSeparator(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// ownText 只取元素本身的文字節點
func ownText(sel *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
	}
	return sb.String()
}

// extractStructuredInstructions 尋找有標題的步驟群組
func extractStructuredInstructions(doc *goquery.Document) []InstructionGroup {
	var container *goquery.Selection
	for _, id := range instructionContainerIDs {
		if sel := doc.Find("div#" + id).First(); sel.Length() > 0 {
			container = sel
			break
		}
	}
	if container == nil {
		for _, class := range instructionContainerClasses {
			if sel := doc.Find("div." + class).First(); sel.Length() > 0 {
				container = sel
				break
			}
		}
	}
	if container == nil {
		return nil
	}

	var groups []InstructionGroup
	container.Find("div").Each(func(_ int, div *goquery.Selection) {
		if !isStepContainer(div) {
			return
		}
		var steps []string
		div.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				steps = append(steps, text)
			}
		})
		if len(steps) > 0 {
			groups = append(groups, InstructionGroup{Title: extractStepTitle(div), Instructions: steps})
		}
	})
	if len(groups) == 0 {
		return nil
	}
	return groups
}

func isStepContainer(div *goquery.Selection) bool {
	class, _ := div.Attr("class")
	for _, c := range strings.Fields(class) {
		if stepClasses[strings.ToLower(c)] {
			return true
		}
	}
	return false
}

func extractStepTitle(div *goquery.Selection) string {
	title := div.Find("p.bold").First()
	if title.Length() == 0 {
		title = div.Find("strong").First()
	}
	if title.Length() == 0 {
		title = div.Find("h2, h3, h4, h5, h6").First()
	}
	if title.Length() == 0 {
		return ""
	}
	return CleanStepTitle(title.Text())
}

// CleanStepTitle 移除 "1. "、"Étape 1:"、"Step 2 -" 等前綴
func CleanStepTitle(title string) string {
	title = strings.TrimSpace(title)
	return strings.TrimSpace(stepTitlePrefix.ReplaceAllString(title, ""))
}

// findPer100gCalories 尋找頁面上每 100g 的熱量
func findPer100gCalories(doc *goquery.Document) float64 {
	for _, id := range []string{"quantity", "100g", "per100g"} {
		if tab := doc.Find("#" + id).First(); tab.Length() > 0 {
			if kcal := extractKcalFromSection(tab); kcal > 0 {
				return kcal
			}
		}
	}

	var kcal float64
	doc.Find("body *").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(ownText(el)), "100g") {
			return true
		}
		parent := el.Closest("div, section, table, ul")
		if parent.Length() == 0 {
			return true
		}
		kcal = extractKcalFromSection(parent)
		return kcal == 0
	})
	return kcal
}

func extractKcalFromSection(section *goquery.Selection) float64 {
	for _, label := range kcalLabels {
		var value float64
		section.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if !strings.Contains(ownText(el), label) {
				return true
			}
			if next := el.Next(); next.Length() > 0 {
				value = extractNumericValue(next.Text())
			}
			return false
		})
		if value > 0 {
			return value
		}
	}
	return 0
}

// extractNumericValue "876kCal" → 876；"1 234,5" → 1234.5
func extractNumericValue(text string) float64 {
	text = strings.ReplaceAll(text, ",", ".")
	text = strings.ReplaceAll(text, " ", "")
	m := numberPattern.FindString(text)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return f
}
