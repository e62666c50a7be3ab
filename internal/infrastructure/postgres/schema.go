package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements DDL локального каталога и хранилища состояния синхронизации.
// Все выражения идемпотентны
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS catalog`,
	`CREATE SCHEMA IF NOT EXISTS sync`,
	`CREATE TABLE IF NOT EXISTS catalog.categories (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		slug        TEXT NOT NULL,
		parent_id   TEXT NULL REFERENCES catalog.categories (id) ON DELETE SET NULL,
		remote_uuid TEXT NULL UNIQUE,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS categories_slug_idx ON catalog.categories (slug)`,
	`CREATE TABLE IF NOT EXISTS catalog.products (
		id                TEXT PRIMARY KEY,
		sku               TEXT NOT NULL UNIQUE,
		title             TEXT NOT NULL,
		body              TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		type              TEXT NOT NULL,
		regular_price     DOUBLE PRECISION NULL,
		manage_stock      BOOLEAN NOT NULL DEFAULT TRUE,
		stock_quantity    INTEGER NOT NULL DEFAULT 0,
		stock_status      TEXT NOT NULL,
		category_id       TEXT NULL REFERENCES catalog.categories (id) ON DELETE SET NULL,
		featured_media_id TEXT NULL,
		gallery           TEXT NOT NULL DEFAULT '',
		metadata          JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS products_category_idx ON catalog.products (category_id)`,
	`CREATE TABLE IF NOT EXISTS catalog.media (
		id          TEXT PRIMARY KEY,
		product_id  TEXT NOT NULL REFERENCES catalog.products (id) ON DELETE CASCADE,
		source_uuid TEXT NOT NULL DEFAULT '',
		source_url  TEXT NOT NULL,
		local_path  TEXT NOT NULL,
		mime_type   TEXT NOT NULL DEFAULT '',
		size        BIGINT NOT NULL DEFAULT 0,
		position    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS media_product_idx ON catalog.media (product_id)`,
	`CREATE TABLE IF NOT EXISTS sync.state (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema создает схемы и таблицы, если их еще нет
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
