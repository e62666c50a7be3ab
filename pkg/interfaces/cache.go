package interfaces

import (
	"context"
	"time"
)

// CachePort определяет интерфейс для работы с системой кэширования
// Реализация может использовать Redis или локальный кэш процесса
type CachePort interface {
	// Get получает значение из кэша по ключу
	// Возвращает ErrCacheMiss, если значение не найдено
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кэше с указанным сроком действия
	// Если expiration равно 0, срок действия не устанавливается
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete удаляет значение из кэша по ключу
	Delete(ctx context.Context, key string) error

	// Lock пытается получить блокировку с указанным ключом
	// Возвращает токен владельца и true, если блокировка получена успешно.
	// Блокировка снимается автоматически по истечении expiration
	Lock(ctx context.Context, key string, expiration time.Duration) (string, bool, error)

	// Unlock освобождает блокировку, только если она все еще принадлежит token.
	// Истекшая и перехваченная другим владельцем блокировка не трогается
	Unlock(ctx context.Context, key, token string) error

	// Close закрывает соединение с системой кэширования
	Close() error
}
