package validation

import (
	"context"
	"errors"
	"testing"

	"recipe-importer/internal/pkg/common"
)

type fakeFinder struct {
	ingredients map[string][]common.IngredientReference
	tags        map[string][]common.TagReference
	err         error
	calls       []string
}

func (f *fakeFinder) FindSimilarIngredients(_ context.Context, name string) ([]common.IngredientReference, error) {
	f.calls = append(f.calls, "ingredient:"+name)
	if f.err != nil {
		return nil, f.err
	}
	return f.ingredients[name], nil
}

func (f *fakeFinder) FindSimilarTags(_ context.Context, name string) ([]common.TagReference, error) {
	f.calls = append(f.calls, "tag:"+name)
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[name], nil
}

func ing(name, qty, unit string) common.IngredientReference {
	return common.IngredientReference{Name: name, Quantity: qty, Unit: unit}
}

func TestValidateExactMatchKeepsScrapedQuantity(t *testing.T) {
	catalog := []common.IngredientReference{{ID: "ing-1", Name: "Chicken", Unit: "kg", Type: "meat"}}
	recipes := []common.ScrapedRecipe{{
		Title:       "Roast",
		Ingredients: []common.IngredientReference{ing("  chicken ", "500", "g")},
	}}

	finder := &fakeFinder{}
	state, err := NewEngine(finder).Validate(context.Background(), recipes, catalog, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(state.ExactMatchIngredients) != 1 {
		t.Fatalf("expected 1 exact match, got %d", len(state.ExactMatchIngredients))
	}
	got := state.IngredientMappings["chicken"]
	if got.ID != "ing-1" || got.Type != "meat" || got.Quantity != "500" || got.Unit != "g" {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if len(finder.calls) != 0 {
		t.Fatalf("similarity collaborator should not be asked for exact matches: %v", finder.calls)
	}
}

func TestValidateQualifiedNameMapsToBaseEntity(t *testing.T) {
	catalog := []common.IngredientReference{{ID: "ing-1", Name: "Chicken"}}
	recipes := []common.ScrapedRecipe{{
		Ingredients: []common.IngredientReference{ing("Chicken (boneless, skinless)", "2", "")},
	}}

	state, err := NewEngine(&fakeFinder{}).Validate(context.Background(), recipes, catalog, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	mapped, ok := state.IngredientMappings["chicken (boneless, skinless)"]
	if !ok {
		t.Fatalf("mapping must be stored under the qualified key, got %v", state.IngredientMappings)
	}
	if mapped.ID != "ing-1" || mapped.Name != "Chicken" {
		t.Fatalf("qualified name should point at base entity, got %+v", mapped)
	}
	if _, ok := state.IngredientMappings["chicken"]; ok {
		t.Fatalf("base key should not be added")
	}
}

func TestValidateDeduplicatesAcrossBatch(t *testing.T) {
	recipes := []common.ScrapedRecipe{
		{Ingredients: []common.IngredientReference{ing("Chicken Breast", "", "")}, Tags: []common.TagReference{{Name: "Dinner"}}},
		{Ingredients: []common.IngredientReference{ing("chicken  breast", "", "")}, Tags: []common.TagReference{{Name: " dinner "}}},
	}
	finder := &fakeFinder{}
	state, err := NewEngine(finder).Validate(context.Background(), recipes, nil, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(state.UniqueIngredients) != 1 || len(state.IngredientsToValidate) != 1 {
		t.Fatalf("expected one unique ingredient, got %d/%d", len(state.UniqueIngredients), len(state.IngredientsToValidate))
	}
	if state.IngredientsToValidate[0].Original.Name != "Chicken Breast" {
		t.Fatalf("first occurrence should win, got %q", state.IngredientsToValidate[0].Original.Name)
	}
	if len(state.TagsToValidate) != 1 {
		t.Fatalf("expected one unique tag, got %d", len(state.TagsToValidate))
	}
	if len(finder.calls) != 2 {
		t.Fatalf("expected one lookup per unique name, got %v", finder.calls)
	}
}

func TestValidateOrdersZeroCandidateItemsFirst(t *testing.T) {
	finder := &fakeFinder{
		ingredients: map[string][]common.IngredientReference{
			"Tomatos": {{ID: "t", Name: "Tomato"}},
			"Onionz":  {{ID: "o", Name: "Onion"}},
		},
		tags: map[string][]common.TagReference{
			"Itallian": {{ID: "it", Name: "Italian"}},
		},
	}
	recipes := []common.ScrapedRecipe{{
		Ingredients: []common.IngredientReference{
			ing("Tomatos", "", ""),
			ing("Dragonfruit", "", ""),
			ing("Onionz", "", ""),
			ing("Yuzu", "", ""),
		},
		Tags: []common.TagReference{{Name: "Itallian"}, {Name: "Brand New"}},
	}}

	state, err := NewEngine(finder).Validate(context.Background(), recipes, nil, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := []string{"dragonfruit", "yuzu", "tomatos", "onionz"}
	if len(state.IngredientsToValidate) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(state.IngredientsToValidate))
	}
	for i, key := range want {
		if state.IngredientsToValidate[i].Key != key {
			t.Fatalf("position %d: want %q, got %q", i, key, state.IngredientsToValidate[i].Key)
		}
	}
	if state.TagsToValidate[0].Key != "brand new" || state.TagsToValidate[1].Key != "itallian" {
		t.Fatalf("unexpected tag order: %+v", state.TagsToValidate)
	}
}

func TestValidateFinderErrorMeansNoCandidates(t *testing.T) {
	finder := &fakeFinder{err: errors.New("db down")}
	recipes := []common.ScrapedRecipe{{Ingredients: []common.IngredientReference{ing("Kale", "", "")}}}
	state, err := NewEngine(finder).Validate(context.Background(), recipes, nil, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(state.IngredientsToValidate) != 1 || len(state.IngredientsToValidate[0].SimilarItems) != 0 {
		t.Fatalf("expected a single candidate-less item, got %+v", state.IngredientsToValidate)
	}
}

func TestValidateHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recipes := []common.ScrapedRecipe{{Ingredients: []common.IngredientReference{ing("Kale", "", "")}}}
	if _, err := NewEngine(&fakeFinder{}).Validate(ctx, recipes, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAddMappingIsIdempotentUpsert(t *testing.T) {
	s := newState()
	s.AddTagMapping("Italian", common.TagReference{ID: "1", Name: "Italian"})
	s.AddTagMapping("  italian ", common.TagReference{ID: "1", Name: "Italian"})
	if len(s.TagMappings) != 1 {
		t.Fatalf("expected one mapping, got %d", len(s.TagMappings))
	}
	s.AddTagMapping("ITALIAN", common.TagReference{ID: "2", Name: "Italian food"})
	if s.TagMappings["italian"].ID != "2" {
		t.Fatalf("upsert should replace the entity, got %+v", s.TagMappings["italian"])
	}
}

func TestApplyMappingsDropsUnmapped(t *testing.T) {
	s := newState()
	s.AddIngredientMapping("Chicken", common.IngredientReference{ID: "c", Name: "Chicken", Quantity: "1", Unit: "kg"})
	s.AddIngredientMapping("Chicken (boneless)", common.IngredientReference{ID: "c", Name: "Chicken"})
	s.AddTagMapping("Dinner", common.TagReference{ID: "d", Name: "Dinner"})

	recipes := []common.ScrapedRecipe{
		{
			Title: "A",
			Ingredients: []common.IngredientReference{
				ing("chicken", "300", "g"),
				ing("Mystery powder", "1", "tsp"),
				ing("Chicken (boneless)", "2", ""),
			},
			Tags: []common.TagReference{{Name: "dinner"}, {Name: "unknown"}},
		},
		{
			Title:       "B",
			Ingredients: []common.IngredientReference{ing("Chicken", "", "")},
		},
	}

	out := ApplyMappingsToRecipes(recipes, s)
	if len(out) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(out))
	}
	a := out[0]
	if len(a.Ingredients) != 1 || a.Ingredients[0].ID != "c" || a.Ingredients[0].Quantity != "300" || a.Ingredients[0].Unit != "g" {
		t.Fatalf("unexpected ingredients for A: %+v", a.Ingredients)
	}
	if len(a.Tags) != 1 || a.Tags[0].ID != "d" {
		t.Fatalf("unexpected tags for A: %+v", a.Tags)
	}
	if out[1].Ingredients[0].Quantity != "" || out[1].Ingredients[0].Unit != "" {
		t.Fatalf("recipe without quantity should not take the mapped quantity, got %+v", out[1].Ingredients[0])
	}
	if len(recipes[0].Ingredients) != 3 {
		t.Fatalf("input batch must not be modified")
	}
}

func TestApplyKeepsEachRecipeQuantity(t *testing.T) {
	catalog := []common.IngredientReference{{ID: "ing-1", Name: "Chicken"}}
	recipes := []common.ScrapedRecipe{
		{Title: "A", Ingredients: []common.IngredientReference{ing("Chicken", "200", "g")}},
		{Title: "B", Ingredients: []common.IngredientReference{ing("chicken", "", "")}},
		{Title: "C", Ingredients: []common.IngredientReference{ing("Chicken", "1", "kg")}},
	}

	state, err := NewEngine(&fakeFinder{}).Validate(context.Background(), recipes, catalog, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	out := ApplyMappingsToRecipes(recipes, state)

	want := []struct{ qty, unit string }{{"200", "g"}, {"", ""}, {"1", "kg"}}
	for i, w := range want {
		got := out[i].Ingredients
		if len(got) != 1 || got[0].ID != "ing-1" || got[0].Quantity != w.qty || got[0].Unit != w.unit {
			t.Fatalf("recipe %s: got %+v, want quantity %q unit %q", out[i].Title, got, w.qty, w.unit)
		}
	}
}

func TestApplyMappingsNeverEmitsUnmappedReference(t *testing.T) {
	s := newState()
	s.AddIngredientMapping("a", common.IngredientReference{ID: "1", Name: "A"})
	s.AddTagMapping("t", common.TagReference{ID: "2", Name: "T"})

	var recipes []common.ScrapedRecipe
	names := []string{"a", "b", " A ", "c", "t"}
	for i := range names {
		r := common.ScrapedRecipe{}
		for _, n := range names[i:] {
			r.Ingredients = append(r.Ingredients, ing(n, "", ""))
			r.Tags = append(r.Tags, common.TagReference{Name: n})
		}
		recipes = append(recipes, r)
	}

	for _, r := range ApplyMappingsToRecipes(recipes, s) {
		for _, i := range r.Ingredients {
			if i.ID != "1" {
				t.Fatalf("unexpected ingredient emitted: %+v", i)
			}
		}
		for _, tag := range r.Tags {
			if tag.ID != "2" {
				t.Fatalf("unexpected tag emitted: %+v", tag)
			}
		}
	}
}

func TestGetValidationProgress(t *testing.T) {
	s := newState()
	s.TagsToValidate = []TagItem{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	s.IngredientsToValidate = []IngredientItem{{Key: "x"}, {Key: "y"}}
	s.AddTagMapping("a", common.TagReference{Name: "A"})
	s.DismissTag("b")
	s.AddIngredientMapping("y", common.IngredientReference{Name: "Y"})

	p := GetValidationProgress(s)
	if p.TotalTags != 3 || p.ValidatedTags != 1 || p.DismissedTags != 1 || p.RemainingTags != 1 {
		t.Fatalf("unexpected tag progress: %+v", p)
	}
	if p.TotalIngredients != 2 || p.ValidatedIngredients != 1 || p.RemainingIngredients != 1 {
		t.Fatalf("unexpected ingredient progress: %+v", p)
	}
}
