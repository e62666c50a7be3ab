package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogStorage локальный каталог и состояние синхронизации в PostgreSQL
type CatalogStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр CatalogStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*CatalogStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &CatalogStorage{
		pool: pool,
	}, nil
}

// Pool возвращает пул соединений для менеджера транзакций и миграций
func (r *CatalogStorage) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping проверяет соединение с БД
func (r *CatalogStorage) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (r *CatalogStorage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает исполнителя запросов (транзакцию или пул)
func (r *CatalogStorage) getExecutor(ctx context.Context) executor {
	if t := r.getTx(ctx); t != nil {
		return t
	}
	return r.pool
}

// getTx получает транзакцию из контекста
func (r *CatalogStorage) getTx(ctx context.Context) pgx.Tx {
	txFromCtx, ok := ctx.Value(tx.GetKey()).(pgx.Tx)
	if !ok {
		return nil
	}
	return txFromCtx
}

const productColumns = `id, sku, title, body, status, type, regular_price, manage_stock, stock_quantity,
	stock_status, COALESCE(category_id, ''), COALESCE(featured_media_id, ''), gallery, metadata,
	created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Title, &p.Body, &p.Status, &p.Type, &p.RegularPrice,
		&p.ManageStock, &p.StockQuantity, &p.StockStatus, &p.CategoryID, &p.FeaturedMediaID,
		&p.Gallery, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProductBySKU ищет товар по артикулу магазина
func (r *CatalogStorage) FindProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM catalog.products WHERE sku = $1`

	product, err := scanProduct(r.getExecutor(ctx).QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // товар не найден
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// CreateProduct создает товар. ID назначается, если не задан
func (r *CatalogStorage) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO catalog.products (id, sku, title, body, status, type, regular_price, manage_stock,
			stock_quantity, stock_status, category_id, featured_media_id, gallery, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14, $15, $15)
	`

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.Metadata == nil {
		product.Metadata = map[string]string{}
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := r.getExecutor(ctx).Exec(ctx, query, product.ID, product.SKU, product.Title, product.Body,
		product.Status, product.Type, product.RegularPrice, product.ManageStock, product.StockQuantity,
		product.StockStatus, product.CategoryID, product.FeaturedMediaID, product.Gallery, product.Metadata, now)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// UpdateProduct перезаписывает изменяемые поля товара
func (r *CatalogStorage) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE catalog.products SET
			title = $2,
			body = $3,
			status = $4,
			regular_price = $5,
			manage_stock = $6,
			stock_quantity = $7,
			stock_status = $8,
			category_id = NULLIF($9, ''),
			metadata = $10,
			updated_at = $11
		WHERE id = $1
	`

	product.UpdatedAt = time.Now().UTC()
	tag, err := r.getExecutor(ctx).Exec(ctx, query, product.ID, product.Title, product.Body, product.Status,
		product.RegularPrice, product.ManageStock, product.StockQuantity, product.StockStatus,
		product.CategoryID, product.Metadata, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update product %s: no rows", product.ID)
	}
	return nil
}

// ListProducts возвращает список товаров с пагинацией и фильтрацией
func (r *CatalogStorage) ListProducts(ctx context.Context, filter *models.ProductFilter, pagination *utils.Pagination) ([]*models.Product, int64, error) {
	var conditions []string
	var args []interface{}

	if filter != nil {
		if filter.SearchQuery != "" {
			args = append(args, "%"+filter.SearchQuery+"%")
			conditions = append(conditions, "(sku ILIKE $"+strconv.Itoa(len(args))+" OR title ILIKE $"+strconv.Itoa(len(args))+")")
		}
		if filter.CategoryID != "" {
			args = append(args, filter.CategoryID)
			conditions = append(conditions, "category_id = $"+strconv.Itoa(len(args)))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
		}
		if filter.InStock != nil {
			if *filter.InStock {
				conditions = append(conditions, "stock_quantity > 0")
			} else {
				conditions = append(conditions, "stock_quantity <= 0")
			}
		}
	}

	baseQuery := " FROM catalog.products " + genFilterConditions(conditions)
	executor := r.getExecutor(ctx)

	var total int64
	if err := executor.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	if total == 0 {
		return []*models.Product{}, 0, nil
	}

	args = append(args, pagination.GetLimit(), pagination.GetOffset())
	dataQuery := `SELECT ` + productColumns + baseQuery +
		` ORDER BY ` + pagination.GetSortOrder() +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := executor.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0, pagination.GetLimit())
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, total, nil
}

// AttachMedia сохраняет запись о медиафайле товара
func (r *CatalogStorage) AttachMedia(ctx context.Context, media *models.ProductMedia) error {
	query := `
		INSERT INTO catalog.media (id, product_id, source_uuid, source_url, local_path, mime_type, size, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if media.ID == "" {
		media.ID = uuid.New().String()
	}
	media.CreatedAt = time.Now().UTC()

	_, err := r.getExecutor(ctx).Exec(ctx, query, media.ID, media.ProductID, media.SourceUUID, media.SourceURL,
		media.LocalPath, media.MimeType, media.Size, media.Position, media.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save media: %w", err)
	}
	return nil
}

// SetProductMedia задает главное изображение и галерею товара
func (r *CatalogStorage) SetProductMedia(ctx context.Context, productID, featuredMediaID, gallery string) error {
	query := `
		UPDATE catalog.products SET
			featured_media_id = NULLIF($2, ''),
			gallery = $3,
			updated_at = now()
		WHERE id = $1
	`

	if _, err := r.getExecutor(ctx).Exec(ctx, query, productID, featuredMediaID, gallery); err != nil {
		return fmt.Errorf("failed to set product media: %w", err)
	}
	return nil
}

const categoryColumns = `id, name, slug, COALESCE(parent_id, ''), COALESCE(remote_uuid, ''), updated_at`

func (r *CatalogStorage) findCategory(ctx context.Context, where string, arg string) (*models.ProductCategory, error) {
	var c models.ProductCategory
	err := r.getExecutor(ctx).QueryRow(ctx, `SELECT `+categoryColumns+` FROM catalog.categories WHERE `+where, arg).
		Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.RemoteUUID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// FindCategory ищет категорию по локальному ID
func (r *CatalogStorage) FindCategory(ctx context.Context, id string) (*models.ProductCategory, error) {
	return r.findCategory(ctx, "id = $1", id)
}

// FindCategoryByRemoteUUID ищет категорию по UUID учетной системы
func (r *CatalogStorage) FindCategoryByRemoteUUID(ctx context.Context, remoteUUID string) (*models.ProductCategory, error) {
	return r.findCategory(ctx, "remote_uuid = $1", remoteUUID)
}

// CreateCategory создает категорию
func (r *CatalogStorage) CreateCategory(ctx context.Context, category *models.ProductCategory) error {
	query := `
		INSERT INTO catalog.categories (id, name, slug, parent_id, remote_uuid, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
	`

	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	category.UpdatedAt = time.Now().UTC()

	_, err := r.getExecutor(ctx).Exec(ctx, query, category.ID, category.Name, category.Slug,
		category.ParentID, category.RemoteUUID, category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// UpdateCategory обновляет имя и родителя категории
func (r *CatalogStorage) UpdateCategory(ctx context.Context, category *models.ProductCategory) error {
	query := `
		UPDATE catalog.categories SET
			name = $2,
			parent_id = NULLIF($3, ''),
			updated_at = $4
		WHERE id = $1
	`

	category.UpdatedAt = time.Now().UTC()
	tag, err := r.getExecutor(ctx).Exec(ctx, query, category.ID, category.Name, category.ParentID, category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update category %s: no rows", category.ID)
	}
	return nil
}

func genFilterConditions(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}
