package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"recipe-importer/internal/infrastructure/database"
	"recipe-importer/internal/pkg/common"
)

const (
	similarityThreshold = 0.3
	similarityLimit     = 5
)

// PostgresCatalog 以 PostgreSQL 保存食材、標籤與食譜
type PostgresCatalog struct {
	db *database.DB
}

// NewPostgresCatalog 創建資料庫目錄
func NewPostgresCatalog(db *database.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// ListIngredients 所有食材
func (c *PostgresCatalog) ListIngredients(ctx context.Context) ([]common.IngredientReference, error) {
	rows, err := c.db.Pool.Query(ctx, `SELECT id::text, name, type FROM ingredients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	return collectIngredients(rows)
}

// ListTags 所有標籤
func (c *PostgresCatalog) ListTags(ctx context.Context) ([]common.TagReference, error) {
	rows, err := c.db.Pool.Query(ctx, `SELECT id::text, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return collectTags(rows)
}

// FindSimilarIngredients 以三元組相似度找出候選食材（不含完全相同者）
func (c *PostgresCatalog) FindSimilarIngredients(ctx context.Context, name string) ([]common.IngredientReference, error) {
	key := common.NormalizeKey(name)
	rows, err := c.db.Pool.Query(ctx, `
		SELECT id::text, name, type
		FROM ingredients
		WHERE similarity(normalized_name, $1) > $2 AND normalized_name <> $1
		ORDER BY similarity(normalized_name, $1) DESC, name ASC
		LIMIT $3
	`, key, similarityThreshold, similarityLimit)
	if err != nil {
		return nil, fmt.Errorf("find similar ingredients: %w", err)
	}
	return collectIngredients(rows)
}

// FindSimilarTags 以三元組相似度找出候選標籤（不含完全相同者）
func (c *PostgresCatalog) FindSimilarTags(ctx context.Context, name string) ([]common.TagReference, error) {
	key := common.NormalizeKey(name)
	rows, err := c.db.Pool.Query(ctx, `
		SELECT id::text, name
		FROM tags
		WHERE similarity(normalized_name, $1) > $2 AND normalized_name <> $1
		ORDER BY similarity(normalized_name, $1) DESC, name ASC
		LIMIT $3
	`, key, similarityThreshold, similarityLimit)
	if err != nil {
		return nil, fmt.Errorf("find similar tags: %w", err)
	}
	return collectTags(rows)
}

// AddMultipleRecipes 在單一交易中寫入所有食譜；沒有 ID 的食材與標籤依名稱新增或沿用
func (c *PostgresCatalog) AddMultipleRecipes(ctx context.Context, recipes []common.ScrapedRecipe) error {
	tx, err := c.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range recipes {
		if err := insertRecipe(ctx, tx, r); err != nil {
			return fmt.Errorf("insert recipe %q: %w", r.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit recipes: %w", err)
	}
	common.LogInfo("食譜已寫入資料庫", zap.Int("count", len(recipes)))
	return nil
}

func insertRecipe(ctx context.Context, tx pgx.Tx, r common.ScrapedRecipe) error {
	instructions := r.Instructions
	if instructions == nil {
		instructions = []string{}
	}

	var recipeID string
	err := tx.QueryRow(ctx, `
		INSERT INTO recipes (title, description, source_url, image, persons, prep_minutes, cook_minutes, instructions, nutrition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text
	`, r.Title, r.Description, r.SourceURL, r.Image, r.Persons, r.PrepMinutes, r.CookMinutes, instructions, r.Nutrition).Scan(&recipeID)
	if err != nil {
		return err
	}

	for i, ing := range r.Ingredients {
		id, err := ensureIngredient(ctx, tx, ing)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity, unit, position)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (recipe_id, ingredient_id) DO NOTHING
		`, recipeID, id, ing.Quantity, ing.Unit, i)
		if err != nil {
			return err
		}
	}

	for _, tag := range r.Tags {
		id, err := ensureTag(ctx, tx, tag)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO recipe_tags (recipe_id, tag_id) VALUES ($1, $2)
			ON CONFLICT (recipe_id, tag_id) DO NOTHING
		`, recipeID, id)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureIngredient(ctx context.Context, tx pgx.Tx, ing common.IngredientReference) (string, error) {
	if ing.ID != "" {
		return ing.ID, nil
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO ingredients (name, normalized_name, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO UPDATE SET name = ingredients.name
		RETURNING id::text
	`, ing.Name, common.NormalizeKey(ing.Name), ing.Type).Scan(&id)
	return id, err
}

func ensureTag(ctx context.Context, tx pgx.Tx, tag common.TagReference) (string, error) {
	if tag.ID != "" {
		return tag.ID, nil
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO tags (name, normalized_name)
		VALUES ($1, $2)
		ON CONFLICT (normalized_name) DO UPDATE SET name = tags.name
		RETURNING id::text
	`, tag.Name, common.NormalizeKey(tag.Name)).Scan(&id)
	return id, err
}

func collectIngredients(rows pgx.Rows) ([]common.IngredientReference, error) {
	defer rows.Close()
	var out []common.IngredientReference
	for rows.Next() {
		var ing common.IngredientReference
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Type); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func collectTags(rows pgx.Rows) ([]common.TagReference, error) {
	defer rows.Close()
	var out []common.TagReference
	for rows.Next() {
		var tag common.TagReference
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}
