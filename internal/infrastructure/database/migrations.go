package database

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, migration001},
	{2, migration002},
}

const migration001 = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS ingredients (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ingredients_name_trgm ON ingredients USING gin (normalized_name gin_trgm_ops);

CREATE TABLE IF NOT EXISTS tags (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tags_name_trgm ON tags USING gin (normalized_name gin_trgm_ops);
`

const migration002 = `
CREATE TABLE IF NOT EXISTS recipes (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	persons INT NOT NULL DEFAULT 0,
	prep_minutes INT NOT NULL DEFAULT 0,
	cook_minutes INT NOT NULL DEFAULT 0,
	instructions TEXT[] NOT NULL DEFAULT ARRAY[]::TEXT[],
	nutrition JSONB,
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_recipes_source_url ON recipes (source_url);

CREATE TABLE IF NOT EXISTS recipe_ingredients (
	recipe_id UUID NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
	ingredient_id UUID NOT NULL REFERENCES ingredients(id),
	quantity TEXT NOT NULL DEFAULT '',
	unit TEXT NOT NULL DEFAULT '',
	position INT NOT NULL,
	PRIMARY KEY (recipe_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS recipe_tags (
	recipe_id UUID NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
	tag_id UUID NOT NULL REFERENCES tags(id),
	PRIMARY KEY (recipe_id, tag_id)
);
`
