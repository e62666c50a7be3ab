package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/auth"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	"github.com/go-chi/chi/v5"
)

// BatchController управление проходом по каталогу
type BatchController interface {
	State(ctx context.Context) (*models.BatchState, error)
	StartBatch(ctx context.Context, batchSize int) (*models.BatchState, error)
	ProcessChunk(ctx context.Context) (*models.ChunkResult, error)
	Stop(ctx context.Context) (*models.BatchState, error)
	Progress(ctx context.Context) (models.Progress, error)
	Cursor(ctx context.Context) (int, error)
	SetCursor(ctx context.Context, offset int) (int, error)
	ResetCursor(ctx context.Context) error
}

// DownloadScheduler постановка отложенных загрузок
type DownloadScheduler interface {
	Schedule(ctx context.Context, kind pkgmodels.JobKind, requestedBy string) (*pkgmodels.DownloadJob, error)
	LastDownload(ctx context.Context) (*time.Time, error)
}

// SyncLogStore журнал синхронизации
type SyncLogStore interface {
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context, cursor services.CursorResetter) error
}

// SyncHandler обработчики панели управления синхронизацией
type SyncHandler struct {
	batch        BatchController
	downloads    DownloadScheduler
	syncLog      SyncLogStore
	categories   services.CategorySyncer
	translations services.TranslationProcessor
	catalog      CatalogRecords
	refresher    ProductRefresher
	products     ProductLister
	logger       interfaces.LoggerPort
}

// SyncDeps зависимости SyncHandler
type SyncDeps struct {
	Batch        BatchController
	Downloads    DownloadScheduler
	SyncLog      SyncLogStore
	Categories   services.CategorySyncer
	Translations services.TranslationProcessor
	Catalog      CatalogRecords
	Refresher    ProductRefresher
	Products     ProductLister
	Logger       interfaces.LoggerPort
}

// NewSyncHandler создает обработчик
func NewSyncHandler(deps SyncDeps) *SyncHandler {
	return &SyncHandler{
		batch:        deps.Batch,
		downloads:    deps.Downloads,
		syncLog:      deps.SyncLog,
		categories:   deps.Categories,
		translations: deps.Translations,
		catalog:      deps.Catalog,
		refresher:    deps.Refresher,
		products:     deps.Products,
		logger:       deps.Logger,
	}
}

// Routes регистрирует маршруты /api/v1/sync
func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/downloads/{kind}", h.ScheduleDownload)

	r.Get("/batch", h.GetBatch)
	r.Post("/batch/start", h.StartBatch)
	r.Post("/batch/step", h.StepBatch)
	r.Post("/batch/stop", h.StopBatch)

	r.Get("/cursor", h.GetCursor)
	r.Put("/cursor", h.SetCursor)
	r.Delete("/cursor", h.ResetCursor)

	r.Get("/log", h.GetLog)
	r.Delete("/log", h.ClearLog)

	r.Post("/categories/sync", h.SyncCategories)
	r.Post("/translations/process", h.ProcessTranslations)

	r.Get("/catalog/export", h.ExportCatalog)

	r.Get("/products", h.ListProducts)
	r.Post("/products/{sku}/refresh", h.RefreshProduct)
}

// ScheduleDownload ставит загрузку в очередь и сразу отвечает 202
func (h *SyncHandler) ScheduleDownload(w http.ResponseWriter, r *http.Request) {
	kind := pkgmodels.JobKind(chi.URLParam(r, "kind"))

	requestedBy := ""
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		requestedBy = p.Username
		if requestedBy == "" {
			requestedBy = p.Subject
		}
	}

	job, err := h.downloads.Schedule(r.Context(), kind, requestedBy)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusAccepted, job)
}

type batchView struct {
	State        *models.BatchState `json:"state"`
	Progress     models.Progress    `json:"progress"`
	LastDownload *time.Time         `json:"last_download,omitempty"`
}

// GetBatch состояние батча и прогресс
func (h *SyncHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	state, err := h.batch.State(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	progress, err := h.batch.Progress(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	last, err := h.downloads.LastDownload(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, batchView{State: state, Progress: progress, LastDownload: last})
}

type startBatchRequest struct {
	BatchSize int `json:"batch_size"`
}

// StartBatch начинает прогон
func (h *SyncHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, r, "Некорректный формат данных")
		return
	}

	state, err := h.batch.StartBatch(r.Context(), req.BatchSize)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, state)
}

// StepBatch обрабатывает один чанк
func (h *SyncHandler) StepBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.batch.ProcessChunk(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

// StopBatch останавливает прогон
func (h *SyncHandler) StopBatch(w http.ResponseWriter, r *http.Request) {
	state, err := h.batch.Stop(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, state)
}

type cursorView struct {
	Offset int `json:"offset"`
}

// GetCursor текущее смещение
func (h *SyncHandler) GetCursor(w http.ResponseWriter, r *http.Request) {
	offset, err := h.batch.Cursor(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, cursorView{Offset: offset})
}

// SetCursor устанавливает смещение, значение ограничивается размером каталога
func (h *SyncHandler) SetCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorView
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, r, "Некорректный формат данных")
		return
	}

	offset, err := h.batch.SetCursor(r.Context(), req.Offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, cursorView{Offset: offset})
}

// ResetCursor возвращает курсор в начало
func (h *SyncHandler) ResetCursor(w http.ResponseWriter, r *http.Request) {
	if err := h.batch.ResetCursor(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, cursorView{Offset: 0})
}

// GetLog журнал синхронизации, новые записи сверху
func (h *SyncHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	text, err := h.syncLog.Get(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]string{"log": text})
}

// ClearLog очищает журнал и сбрасывает курсор
func (h *SyncHandler) ClearLog(w http.ResponseWriter, r *http.Request) {
	if err := h.syncLog.Clear(r.Context(), h.batch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, cursorView{Offset: 0})
}

// SyncCategories синхронизирует дерево категорий
func (h *SyncHandler) SyncCategories(w http.ResponseWriter, r *http.Request) {
	count, err := h.categories.SyncCategories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]int{"categories": count})
}

// ProcessTranslations пересобирает таблицу переводов из загруженного файла
func (h *SyncHandler) ProcessTranslations(w http.ResponseWriter, r *http.Request) {
	table, err := h.translations.Process(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]int{
		"nomenclature": len(table.Nomenclature),
		"properties":   len(table.Properties),
	})
}
