package cache

import (
	"context"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache CachePort внутри процесса поверх go-cache.
// Используется, когда Redis выключен в конфигурации
type MemoryCache struct {
	cache *gocache.Cache
	// lockMu делает проверку владельца и удаление в Unlock атомарными
	lockMu sync.Mutex
}

func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func ttl(expiration time.Duration) time.Duration {
	if expiration <= 0 {
		return gocache.NoExpiration
	}
	return expiration
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, utils.ErrCacheMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, utils.ErrCacheMiss
	}
	return b, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	m.cache.Set(key, value, ttl(expiration))
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Lock использует Add, который атомарно отказывает при существующем ключе
func (m *MemoryCache) Lock(_ context.Context, key string, expiration time.Duration) (string, bool, error) {
	token := uuid.New().String()

	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if err := m.cache.Add("lock:"+key, token, ttl(expiration)); err != nil {
		return "", false, nil
	}
	return token, true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key, token string) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if v, ok := m.cache.Get("lock:" + key); ok && v == token {
		m.cache.Delete("lock:" + key)
	}
	return nil
}

func (m *MemoryCache) Close() error {
	m.cache.Flush()
	return nil
}
