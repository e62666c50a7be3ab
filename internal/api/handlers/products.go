package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// CatalogRecords записи загруженного каталога
type CatalogRecords interface {
	Records(ctx context.Context) ([]models.ProductRecord, error)
	FindBySKU(ctx context.Context, sku string) (*models.ProductRecord, error)
}

// ProductRefresher обновление существующей карточки
type ProductRefresher interface {
	Refresh(ctx context.Context, rec models.ProductRecord) (models.Outcome, error)
}

// ProductLister список локальных товаров
type ProductLister interface {
	ListProducts(ctx context.Context, filter *models.ProductFilter, pagination *utils.Pagination) ([]*models.Product, int64, error)
}

var productSortFields = []string{"created_at", "updated_at", "sku", "title", "stock_quantity", "regular_price"}

// ListProducts обрабатывает запрос на получение списка продуктов
func (h *SyncHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Получаем параметры пагинации
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || pageSize < 1 {
		pageSize = 20
	}
	sortDesc := q.Get("sort_desc") != "false"

	pagination := utils.NewPagination(page, pageSize, q.Get("sort_by"), sortDesc)
	pagination.RestrictSort(productSortFields...)

	// Получаем параметры фильтрации
	filter := &models.ProductFilter{
		SearchQuery: q.Get("q"),
		CategoryID:  q.Get("category_id"),
		Status:      q.Get("status"),
	}
	if inStock := q.Get("in_stock"); inStock != "" {
		if v, err := strconv.ParseBool(inStock); err == nil {
			filter.InStock = &v
		}
	}

	products, total, err := h.products.ListProducts(r.Context(), filter, pagination)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pagination.SetTotal(total)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    products,
		Meta: map[string]interface{}{
			"pagination": pagination,
		},
	})
}

// RefreshProduct обновляет остаток, цену и изображения существующей карточки
func (h *SyncHandler) RefreshProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		writeBadRequest(w, r, "Артикул не указан")
		return
	}

	rec, err := h.catalog.FindBySKU(r.Context(), sku)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	outcome, err := h.refresher.Refresh(r.Context(), *rec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if outcome.Kind == models.OutcomeFailed && outcome.Err != nil {
		writeError(w, r, h.logger, outcome.Err)
		return
	}
	writeOK(w, r, http.StatusOK, outcome)
}
