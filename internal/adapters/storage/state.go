package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Get возвращает значение ключа состояния или nil, если ключа нет
func (r *CatalogStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.getExecutor(ctx).QueryRow(ctx, `SELECT value FROM sync.state WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// Set записывает значение безусловно
func (r *CatalogStorage) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO sync.state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`
	if _, err := r.getExecutor(ctx).Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap записывает next, только если в базе лежит prev
func (r *CatalogStorage) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	executor := r.getExecutor(ctx)

	if prev == nil {
		tag, err := executor.Exec(ctx, `
			INSERT INTO sync.state (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO NOTHING
		`, key, next)
		if err != nil {
			return false, fmt.Errorf("failed to insert state %s: %w", key, err)
		}
		return tag.RowsAffected() == 1, nil
	}

	tag, err := executor.Exec(ctx, `
		UPDATE sync.state SET
			value = $3,
			updated_at = now()
		WHERE key = $1 AND value = $2
	`, key, prev, next)
	if err != nil {
		return false, fmt.Errorf("failed to swap state %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete удаляет ключ состояния
func (r *CatalogStorage) Delete(ctx context.Context, key string) error {
	if _, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM sync.state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}
