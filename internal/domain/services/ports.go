package services

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
)

// RemoteTransport три операции протокола учетной системы
type RemoteTransport interface {
	// RequestData ставит запрос и возвращает его идентификатор
	RequestData(ctx context.Context, req models.RemoteRequest) (string, error)
	// IsReady проверяет готовность данных
	IsReady(ctx context.Context, requestID string) (bool, error)
	// GetDataByID забирает ответ целиком
	GetDataByID(ctx context.Context, requestID string) (*models.RemoteResponse, error)
}

// StockPriceSource остатки и цены по одному товару
type StockPriceSource interface {
	GetStock(ctx context.Context, uuid string) (int, error)
	// GetPrice возвращает nil, если цены нет
	GetPrice(ctx context.Context, uuid string) (*float64, error)
}

// CatalogSource упорядоченный список записей каталога
type CatalogSource interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]models.ProductRecord, error)
}

// CatalogStore локальный каталог магазина
type CatalogStore interface {
	// FindProductBySKU возвращает nil, nil если товара нет
	FindProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	ListProducts(ctx context.Context, filter *models.ProductFilter, pagination *utils.Pagination) ([]*models.Product, int64, error)

	AttachMedia(ctx context.Context, media *models.ProductMedia) error
	SetProductMedia(ctx context.Context, productID, featuredMediaID, gallery string) error

	// FindCategory возвращает nil, nil если категории нет
	FindCategory(ctx context.Context, id string) (*models.ProductCategory, error)
	FindCategoryByRemoteUUID(ctx context.Context, remoteUUID string) (*models.ProductCategory, error)
	CreateCategory(ctx context.Context, category *models.ProductCategory) error
	UpdateCategory(ctx context.Context, category *models.ProductCategory) error
}

// MediaDownloader скачивает изображение в локальное медиахранилище
type MediaDownloader interface {
	Download(ctx context.Context, ref models.ImageRef) (*models.MediaFile, error)
}

// PayloadStore файлы выгрузок каталога и переводов
type PayloadStore interface {
	Save(ctx context.Context, name string, data []byte) (int64, error)
	Load(ctx context.Context, name string) ([]byte, error)
	// Stat возвращает nil, nil если файла нет
	Stat(ctx context.Context, name string) (*models.PayloadInfo, error)
}

// Locker блокировка одного исполнителя
type Locker interface {
	Lock(ctx context.Context, key string, expiration time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// EventPublisher публикует события о товарах
type EventPublisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// JobQueue очередь отложенных задач
type JobQueue interface {
	PublishWithKey(ctx context.Context, topic string, key string, message []byte) error
}

// Sleeper пауза между попытками. В тестах подменяется
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep ждет d или отмены контекста
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
