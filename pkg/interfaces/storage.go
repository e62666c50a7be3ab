package interfaces

import (
	"context"
)

// StatePort определяет постоянное key-value хранилище состояния синхронизации.
// В нем живут курсор, состояние батча, маппинг категорий, таблица переводов и лог
type StatePort interface {
	// Get возвращает значение по ключу
	// Возвращает nil, nil если ключ не найден
	Get(ctx context.Context, key string) ([]byte, error)

	// Set безусловно записывает значение
	Set(ctx context.Context, key string, value []byte) error

	// CompareAndSwap записывает next, только если текущее значение равно prev.
	// prev == nil означает, что ключ должен отсутствовать
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)

	// Delete удаляет ключ
	Delete(ctx context.Context, key string) error
}
