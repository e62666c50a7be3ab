package models

import (
	"time"
)

// ImageRef ссылка на изображение товара в каталоге
type ImageRef struct {
	UUID   string `json:"uuid"`
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	IsMain bool   `json:"is_main"`
}

// ProductRecord снимок товара из каталога. Пересобирается при каждом чтении файла каталога
type ProductRecord struct {
	UUID          string     `json:"uuid"`
	Code          string     `json:"code"`
	SKU           string     `json:"sku"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Article       string     `json:"article"`
	Barcode       string     `json:"barcode"`
	Active        bool       `json:"active"`
	CategoryUUID  string     `json:"category_uuid"`
	MainImageUUID string     `json:"main_image_uuid,omitempty"`
	Images        []ImageRef `json:"images,omitempty"`
}

// Статусы локального товара
const (
	ProductStatusPublish = "publish"
	ProductTypeSimple    = "simple"
	StockStatusInStock   = "instock"
	StockStatusOutStock  = "outofstock"
)

// Product локальная карточка товара
type Product struct {
	ID              string            `db:"id" json:"id"`
	SKU             string            `db:"sku" json:"sku"`
	Title           string            `db:"title" json:"title"`
	Body            string            `db:"body" json:"body"`
	Status          string            `db:"status" json:"status"`
	Type            string            `db:"type" json:"type"`
	RegularPrice    *float64          `db:"regular_price" json:"regular_price,omitempty"`
	ManageStock     bool              `db:"manage_stock" json:"manage_stock"`
	StockQuantity   int               `db:"stock_quantity" json:"stock_quantity"`
	StockStatus     string            `db:"stock_status" json:"stock_status"`
	CategoryID      string            `db:"category_id" json:"category_id,omitempty"`
	FeaturedMediaID string            `db:"featured_media_id" json:"featured_media_id,omitempty"`
	Gallery         string            `db:"gallery" json:"gallery,omitempty"`
	Metadata        map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ProductMedia медиафайл, прикрепленный к товару
type ProductMedia struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	SourceUUID string    `json:"source_uuid"`
	SourceURL  string    `json:"source_url"`
	LocalPath  string    `json:"local_path"`
	MimeType   string    `json:"mime_type,omitempty"`
	Size       int64     `json:"size"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// OutcomeKind итог обработки одной записи каталога
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// SkipReason причина пропуска записи.
// Ошибка запроса остатка или цены не превращается в SkipNoStock или
// SkipInvalidPrice: такая запись получает OutcomeFailed, чтобы сбой
// удаленной системы был виден отдельно от настоящего нулевого остатка
type SkipReason string

const (
	SkipInactive     SkipReason = "inactive"
	SkipDuplicate    SkipReason = "duplicate"
	SkipNoStock      SkipReason = "no_stock"
	SkipInvalidPrice SkipReason = "invalid_price"
)

// Outcome результат решения по записи
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Reason    SkipReason  `json:"reason,omitempty"`
	SKU       string      `json:"sku"`
	UUID      string      `json:"uuid"`
	ProductID string      `json:"product_id,omitempty"`
	Err       error       `json:"-"`
}
