package validation

import (
	"recipe-importer/internal/pkg/common"
)

// IngredientItem 待使用者確認的食材
type IngredientItem struct {
	Key          string                       `json:"key"`
	Original     common.IngredientReference   `json:"original"`
	SimilarItems []common.IngredientReference `json:"similar_items"`
}

// TagItem 待使用者確認的標籤
type TagItem struct {
	Key          string                `json:"key"`
	Original     common.TagReference   `json:"original"`
	SimilarItems []common.TagReference `json:"similar_items"`
}

// State 一批匯入的驗證狀態
// 對應表只會新增或覆寫，不會在同一次流程中移除
type State struct {
	UniqueIngredients map[string]common.IngredientReference `json:"unique_ingredients"`
	UniqueTags        map[string]common.TagReference        `json:"unique_tags"`

	ExactMatchIngredients []common.IngredientReference `json:"exact_match_ingredients"`
	ExactMatchTags        []common.TagReference        `json:"exact_match_tags"`

	IngredientsToValidate []IngredientItem `json:"ingredients_to_validate"`
	TagsToValidate        []TagItem        `json:"tags_to_validate"`

	IngredientMappings map[string]common.IngredientReference `json:"ingredient_mappings"`
	TagMappings        map[string]common.TagReference        `json:"tag_mappings"`

	DismissedIngredients map[string]struct{} `json:"-"`
	DismissedTags        map[string]struct{} `json:"-"`
}

func newState() *State {
	return &State{
		UniqueIngredients:    make(map[string]common.IngredientReference),
		UniqueTags:           make(map[string]common.TagReference),
		IngredientMappings:   make(map[string]common.IngredientReference),
		TagMappings:          make(map[string]common.TagReference),
		DismissedIngredients: make(map[string]struct{}),
		DismissedTags:        make(map[string]struct{}),
	}
}

// AddIngredientMapping 以正規化鍵新增或覆寫食材對應
func (s *State) AddIngredientMapping(name string, entity common.IngredientReference) {
	key := common.NormalizeKey(name)
	if key == "" {
		return
	}
	s.IngredientMappings[key] = entity
}

// AddTagMapping 以正規化鍵新增或覆寫標籤對應
func (s *State) AddTagMapping(name string, entity common.TagReference) {
	key := common.NormalizeKey(name)
	if key == "" {
		return
	}
	s.TagMappings[key] = entity
}

// DismissIngredient 標記食材為略過，不新增對應
func (s *State) DismissIngredient(name string) {
	s.DismissedIngredients[common.NormalizeKey(name)] = struct{}{}
}

// DismissTag 標記標籤為略過，不新增對應
func (s *State) DismissTag(name string) {
	s.DismissedTags[common.NormalizeKey(name)] = struct{}{}
}

// Progress 驗證進度
type Progress struct {
	TotalTags            int `json:"total_tags"`
	ValidatedTags        int `json:"validated_tags"`
	DismissedTags        int `json:"dismissed_tags"`
	RemainingTags        int `json:"remaining_tags"`
	TotalIngredients     int `json:"total_ingredients"`
	ValidatedIngredients int `json:"validated_ingredients"`
	DismissedIngredients int `json:"dismissed_ingredients"`
	RemainingIngredients int `json:"remaining_ingredients"`
}

// GetValidationProgress 計算待確認項目的進度
func GetValidationProgress(s *State) Progress {
	var p Progress
	if s == nil {
		return p
	}

	p.TotalTags = len(s.TagsToValidate)
	for _, item := range s.TagsToValidate {
		if _, ok := s.TagMappings[item.Key]; ok {
			p.ValidatedTags++
		} else if _, ok := s.DismissedTags[item.Key]; ok {
			p.DismissedTags++
		}
	}
	p.RemainingTags = p.TotalTags - p.ValidatedTags - p.DismissedTags

	p.TotalIngredients = len(s.IngredientsToValidate)
	for _, item := range s.IngredientsToValidate {
		if _, ok := s.IngredientMappings[item.Key]; ok {
			p.ValidatedIngredients++
		} else if _, ok := s.DismissedIngredients[item.Key]; ok {
			p.DismissedIngredients++
		}
	}
	p.RemainingIngredients = p.TotalIngredients - p.ValidatedIngredients - p.DismissedIngredients

	return p
}
