package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
	"github.com/google/uuid"
)

// DefaultSKUPrefix префикс артикула магазина
const DefaultSKUPrefix = "LU"

// FormatSKU добавляет префикс LU, если его еще нет
func FormatSKU(code string) string {
	return FormatSKUWithPrefix(DefaultSKUPrefix, code)
}

// FormatSKUWithPrefix добавляет префикс, если код с него еще не начинается
func FormatSKUWithPrefix(prefix, code string) string {
	if strings.HasPrefix(code, prefix) {
		return code
	}
	return prefix + code
}

// Translator источник переводов названий и описаний
type Translator interface {
	HasTranslations(ctx context.Context) bool
	ProductTranslation(ctx context.Context, uuid, field string) (string, bool)
}

// CategoryResolver находит локальную категорию по UUID учетной системы
type CategoryResolver interface {
	ResolveLocalID(ctx context.Context, uuid string) (string, bool, error)
}

// Candidate запись, прошедшая проверки без цены
type Candidate struct {
	Record models.ProductRecord
	Stock  int
}

// ProductEngine решает судьбу записи каталога: создать, обновить или пропустить
type ProductEngine struct {
	store        CatalogStore
	source       StockPriceSource
	translations Translator
	categories   CategoryResolver
	images       *ImagePipeline
	txManager    tx.TxManager
	events       EventPublisher
	skuPrefix    string
	logger       interfaces.LoggerPort
}

// NewProductEngine создает движок решений. events может быть nil
func NewProductEngine(
	store CatalogStore,
	source StockPriceSource,
	translations Translator,
	categories CategoryResolver,
	images *ImagePipeline,
	txManager tx.TxManager,
	events EventPublisher,
	skuPrefix string,
	logger interfaces.LoggerPort,
) *ProductEngine {
	if skuPrefix == "" {
		skuPrefix = DefaultSKUPrefix
	}
	return &ProductEngine{
		store:        store,
		source:       source,
		translations: translations,
		categories:   categories,
		images:       images,
		txManager:    txManager,
		events:       events,
		skuPrefix:    skuPrefix,
		logger:       logger,
	}
}

// FormatSKU артикул магазина для кода учетной системы
func (e *ProductEngine) FormatSKU(code string) string {
	return FormatSKUWithPrefix(e.skuPrefix, code)
}

// SKUExists проверяет, есть ли товар с таким кодом в локальном каталоге
func (e *ProductEngine) SKUExists(ctx context.Context, code string) (bool, error) {
	product, err := e.store.FindProductBySKU(ctx, e.FormatSKU(code))
	if err != nil {
		return false, fmt.Errorf("%w: %v", utils.ErrPersistence, err)
	}
	return product != nil, nil
}

func (e *ProductEngine) skipped(ctx context.Context, rec models.ProductRecord, reason models.SkipReason, args ...interface{}) models.Outcome {
	fields := append([]interface{}{
		interfaces.LogField{Key: "name", Value: rec.Name},
		interfaces.LogField{Key: "sku", Value: rec.SKU},
		interfaces.LogField{Key: "reason", Value: string(reason)},
	}, args...)
	e.logger.InfoWithContext(ctx, "Товар пропущен", fields...)
	return models.Outcome{Kind: models.OutcomeSkipped, Reason: reason, SKU: rec.SKU, UUID: rec.UUID}
}

func (e *ProductEngine) failed(ctx context.Context, rec models.ProductRecord, err error) models.Outcome {
	e.logger.ErrorWithContext(ctx, "Ошибка обработки товара",
		interfaces.LogField{Key: "name", Value: rec.Name},
		interfaces.LogField{Key: "sku", Value: rec.SKU},
		interfaces.LogField{Key: "error", Value: err.Error()},
	)
	return models.Outcome{Kind: models.OutcomeFailed, SKU: rec.SKU, UUID: rec.UUID, Err: err}
}

// Precheck проверки до цены: активность, дубликат, остаток.
// Если candidate == nil, outcome окончательный
func (e *ProductEngine) Precheck(ctx context.Context, rec models.ProductRecord) (*Candidate, models.Outcome) {
	if rec.SKU == "" {
		rec.SKU = e.FormatSKU(rec.Code)
	}

	e.logger.DebugWithContext(ctx, "Проверяем товар",
		interfaces.LogField{Key: "name", Value: rec.Name},
		interfaces.LogField{Key: "code", Value: rec.Code},
		interfaces.LogField{Key: "sku", Value: rec.SKU},
	)

	if !rec.Active {
		return nil, e.skipped(ctx, rec, models.SkipInactive)
	}

	exists, err := e.SKUExists(ctx, rec.Code)
	if err != nil {
		return nil, e.failed(ctx, rec, err)
	}
	if exists {
		return nil, e.skipped(ctx, rec, models.SkipDuplicate)
	}

	stock, err := e.source.GetStock(ctx, rec.UUID)
	if err != nil {
		return nil, e.failed(ctx, rec, err)
	}
	if stock <= 0 {
		return nil, e.skipped(ctx, rec, models.SkipNoStock, interfaces.LogField{Key: "stock", Value: stock})
	}

	return &Candidate{Record: rec, Stock: stock}, models.Outcome{}
}

// Complete проверка цены и создание карточки
func (e *ProductEngine) Complete(ctx context.Context, c *Candidate) models.Outcome {
	rec := c.Record

	price, err := e.source.GetPrice(ctx, rec.UUID)
	if err != nil {
		return e.failed(ctx, rec, err)
	}
	if price == nil || *price <= 0 {
		priceText := "null"
		if price != nil {
			priceText = fmt.Sprintf("%v", *price)
		}
		return e.skipped(ctx, rec, models.SkipInvalidPrice, interfaces.LogField{Key: "price", Value: priceText})
	}

	name, description := e.localize(ctx, rec)

	product := &models.Product{
		SKU:           rec.SKU,
		Title:         name,
		Body:          description,
		Status:        models.ProductStatusPublish,
		Type:          models.ProductTypeSimple,
		RegularPrice:  price,
		ManageStock:   true,
		StockQuantity: c.Stock,
		StockStatus:   models.StockStatusInStock,
		Metadata:      productMetadata(rec),
	}
	product.CategoryID = e.resolveCategory(ctx, rec)

	var images []DownloadedImage
	if len(rec.Images) > 0 && e.images != nil {
		images = e.images.Download(ctx, rec)
	}

	err = e.txManager.Do(ctx, func(txCtx context.Context) error {
		if err := e.store.CreateProduct(txCtx, product); err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		featured, gallery, err := e.images.Attach(txCtx, product.ID, rec, images)
		if err != nil {
			return err
		}
		product.FeaturedMediaID = featured
		product.Gallery = gallery
		return nil
	})
	if err != nil {
		return e.failed(ctx, rec, fmt.Errorf("%w: %v", utils.ErrPersistence, err))
	}

	e.logger.InfoWithContext(ctx, "Товар добавлен",
		interfaces.LogField{Key: "name", Value: name},
		interfaces.LogField{Key: "sku", Value: rec.SKU},
		interfaces.LogField{Key: "stock", Value: c.Stock},
		interfaces.LogField{Key: "price", Value: *price},
	)

	outcome := models.Outcome{Kind: models.OutcomeCreated, SKU: rec.SKU, UUID: rec.UUID, ProductID: product.ID}
	e.publish(ctx, messaging.ProductCreatedEvent, outcome)
	return outcome
}

// Decide полная последовательность проверок для одной записи
func (e *ProductEngine) Decide(ctx context.Context, rec models.ProductRecord) models.Outcome {
	candidate, outcome := e.Precheck(ctx, rec)
	if candidate == nil {
		return outcome
	}
	return e.Complete(ctx, candidate)
}

// UpdateExisting обновляет существующую карточку. Остаток применяется всегда
// (при нуле товар помечается как отсутствующий), цена только валидная
func (e *ProductEngine) UpdateExisting(ctx context.Context, product *models.Product, rec models.ProductRecord) models.Outcome {
	if rec.SKU == "" {
		rec.SKU = e.FormatSKU(rec.Code)
	}

	name, description := e.localize(ctx, rec)

	stock, err := e.source.GetStock(ctx, rec.UUID)
	if err != nil {
		return e.failed(ctx, rec, err)
	}
	if stock <= 0 {
		e.logger.WarnWithContext(ctx, "У существующего товара нет остатка",
			interfaces.LogField{Key: "sku", Value: rec.SKU},
			interfaces.LogField{Key: "stock", Value: stock},
		)
		product.StockQuantity = 0
		product.StockStatus = models.StockStatusOutStock
	} else {
		product.StockQuantity = stock
		product.StockStatus = models.StockStatusInStock
	}
	product.ManageStock = true

	price, err := e.source.GetPrice(ctx, rec.UUID)
	switch {
	case err != nil:
		e.logger.WarnWithContext(ctx, "Цена не получена, оставляем прежнюю",
			interfaces.LogField{Key: "sku", Value: rec.SKU},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	case price == nil || *price <= 0:
		e.logger.WarnWithContext(ctx, "Нет валидной цены, оставляем прежнюю",
			interfaces.LogField{Key: "sku", Value: rec.SKU},
		)
	default:
		product.RegularPrice = price
	}

	product.Title = name
	product.Body = description
	product.Status = models.ProductStatusPublish
	if product.Metadata == nil {
		product.Metadata = map[string]string{}
	}
	for k, v := range productMetadata(rec) {
		product.Metadata[k] = v
	}
	if categoryID := e.resolveCategory(ctx, rec); categoryID != "" {
		product.CategoryID = categoryID
	}

	if err := e.store.UpdateProduct(ctx, product); err != nil {
		return e.failed(ctx, rec, fmt.Errorf("%w: %v", utils.ErrPersistence, err))
	}

	// изображения догружаем только если у товара их еще нет
	if product.FeaturedMediaID == "" && len(rec.Images) > 0 && e.images != nil {
		if err := e.images.Process(ctx, product.ID, rec); err != nil {
			e.logger.WarnWithContext(ctx, "Не удалось обновить изображения",
				interfaces.LogField{Key: "sku", Value: rec.SKU},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}

	e.logger.InfoWithContext(ctx, "Товар обновлен",
		interfaces.LogField{Key: "name", Value: name},
		interfaces.LogField{Key: "sku", Value: rec.SKU},
		interfaces.LogField{Key: "stock", Value: product.StockQuantity},
	)

	outcome := models.Outcome{Kind: models.OutcomeUpdated, SKU: rec.SKU, UUID: rec.UUID, ProductID: product.ID}
	e.publish(ctx, messaging.ProductUpdatedEvent, outcome)
	return outcome
}

// Refresh находит локальную карточку по артикулу записи и обновляет ее
func (e *ProductEngine) Refresh(ctx context.Context, rec models.ProductRecord) (models.Outcome, error) {
	if rec.SKU == "" {
		rec.SKU = e.FormatSKU(rec.Code)
	}
	product, err := e.store.FindProductBySKU(ctx, rec.SKU)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", utils.ErrPersistence, err)
	}
	if product == nil {
		return models.Outcome{}, fmt.Errorf("product %s: %w", rec.SKU, utils.ErrNotFound)
	}
	return e.UpdateExisting(ctx, product, rec), nil
}

func (e *ProductEngine) localize(ctx context.Context, rec models.ProductRecord) (string, string) {
	name, description := rec.Name, rec.Description
	if e.translations == nil || !e.translations.HasTranslations(ctx) {
		return name, description
	}
	if text, ok := e.translations.ProductTranslation(ctx, rec.UUID, "name"); ok {
		name = text
	}
	if text, ok := e.translations.ProductTranslation(ctx, rec.UUID, "description"); ok {
		description = text
	}
	return name, description
}

// resolveCategory ошибка категории не мешает созданию товара
func (e *ProductEngine) resolveCategory(ctx context.Context, rec models.ProductRecord) string {
	if rec.CategoryUUID == "" || e.categories == nil {
		return ""
	}
	id, ok, err := e.categories.ResolveLocalID(ctx, rec.CategoryUUID)
	if err != nil {
		e.logger.WarnWithContext(ctx, "Ошибка поиска категории",
			interfaces.LogField{Key: "category_uuid", Value: rec.CategoryUUID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return ""
	}
	if !ok {
		e.logger.WarnWithContext(ctx, "Категория не найдена",
			interfaces.LogField{Key: "category_uuid", Value: rec.CategoryUUID},
		)
		return ""
	}
	return id
}

func productMetadata(rec models.ProductRecord) map[string]string {
	meta := map[string]string{
		"sku":  rec.SKU,
		"uuid": rec.UUID,
	}
	if rec.Barcode != "" {
		meta["barcode"] = rec.Barcode
	}
	if rec.Article != "" {
		meta["article"] = rec.Article
	}
	return meta
}

// RecordOutcome пишет итог в метрики и публикует событие о пропуске
func (e *ProductEngine) RecordOutcome(ctx context.Context, o models.Outcome) {
	metrics.ProductOutcomes.WithLabelValues(string(o.Kind), string(o.Reason)).Inc()
	if o.Kind == models.OutcomeSkipped {
		e.publish(ctx, messaging.ProductSkippedEvent, o)
	}
}

func (e *ProductEngine) publish(ctx context.Context, eventType string, o models.Outcome) {
	if e.events == nil {
		return
	}
	runID, _ := ctx.Value(interfaces.RunIDKey).(string)
	event := pkgmodels.ProductEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		RunID:      runID,
		ProductID:  o.ProductID,
		SKU:        o.SKU,
		RemoteUUID: o.UUID,
		Reason:     string(o.Reason),
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.events.Publish(ctx, messaging.EventsTopic, data); err != nil {
		e.logger.WarnWithContext(ctx, "Не удалось опубликовать событие",
			interfaces.LogField{Key: "type", Value: eventType},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
