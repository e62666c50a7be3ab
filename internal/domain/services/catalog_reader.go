package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
)

// CatalogReader читает сохраненный файл каталога. Разобранный список кэшируется
// до изменения файла
type CatalogReader struct {
	payloads PayloadStore
	parser   *CatalogParser
	fileName string
	cache    *gocache.Cache
	logger   interfaces.LoggerPort

	mu sync.Mutex
}

// NewCatalogReader создает читателя каталога
func NewCatalogReader(payloads PayloadStore, parser *CatalogParser, fileName string, ttl time.Duration, logger interfaces.LoggerPort) *CatalogReader {
	return &CatalogReader{
		payloads: payloads,
		parser:   parser,
		fileName: fileName,
		cache:    gocache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Records возвращает все записи каталога в порядке файла
func (r *CatalogReader) Records(ctx context.Context) ([]models.ProductRecord, error) {
	info, err := r.payloads.Stat(ctx, r.fileName)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("catalog file %s: %w", r.fileName, utils.ErrEmptyCatalog)
	}

	key := fmt.Sprintf("%s:%d:%d", info.Name, info.ModTime, info.Size)
	if v, ok := r.cache.Get(key); ok {
		return v.([]models.ProductRecord), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(key); ok {
		return v.([]models.ProductRecord), nil
	}

	raw, err := r.payloads.Load(ctx, r.fileName)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	records, err := r.parser.ParseCatalog(string(raw))
	if err != nil {
		r.logger.ErrorWithContext(ctx, "Ошибка разбора файла каталога",
			interfaces.LogField{Key: "file", Value: r.fileName},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	// в кэше держим только актуальную версию файла
	r.cache.Flush()
	r.cache.SetDefault(key, records)

	r.logger.DebugWithContext(ctx, "Каталог прочитан",
		interfaces.LogField{Key: "products", Value: len(records)},
	)
	return records, nil
}

// Count число товаров в каталоге
func (r *CatalogReader) Count(ctx context.Context) (int, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Slice не больше limit записей начиная с offset
func (r *CatalogReader) Slice(ctx context.Context, offset, limit int) ([]models.ProductRecord, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) || limit <= 0 {
		return []models.ProductRecord{}, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

// FindBySKU ищет запись по артикулу магазина
func (r *CatalogReader) FindBySKU(ctx context.Context, sku string) (*models.ProductRecord, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].SKU == sku || records[i].Code == sku {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", sku, utils.ErrNotFound)
}
