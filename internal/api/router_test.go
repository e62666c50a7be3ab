package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	pkgutils "github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeBatch struct {
	startSize   int
	startErr    error
	cursor      int
	resetCalled bool
}

func (f *fakeBatch) State(context.Context) (*models.BatchState, error) {
	return &models.BatchState{RunID: "run-1", InProgress: true}, nil
}
func (f *fakeBatch) StartBatch(_ context.Context, size int) (*models.BatchState, error) {
	f.startSize = size
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &models.BatchState{RunID: "run-1", BatchSize: size, InProgress: true}, nil
}
func (f *fakeBatch) ProcessChunk(context.Context) (*models.ChunkResult, error) {
	return &models.ChunkResult{RunID: "run-1", Visited: 5}, nil
}
func (f *fakeBatch) Stop(context.Context) (*models.BatchState, error) {
	return &models.BatchState{RunID: "run-1", LastError: "stopped"}, nil
}
func (f *fakeBatch) Progress(context.Context) (models.Progress, error) {
	return models.NewProgress(f.cursor, 40), nil
}
func (f *fakeBatch) Cursor(context.Context) (int, error) { return f.cursor, nil }
func (f *fakeBatch) SetCursor(_ context.Context, offset int) (int, error) {
	if offset < 0 {
		return 0, utils.ErrInvalidCursor
	}
	if offset > 40 {
		offset = 40
	}
	f.cursor = offset
	return offset, nil
}
func (f *fakeBatch) ResetCursor(context.Context) error {
	f.resetCalled = true
	f.cursor = 0
	return nil
}

type fakeDownloads struct {
	kind        pkgmodels.JobKind
	requestedBy string
}

func (f *fakeDownloads) Schedule(_ context.Context, kind pkgmodels.JobKind, requestedBy string) (*pkgmodels.DownloadJob, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnknownJobKind, kind)
	}
	f.kind, f.requestedBy = kind, requestedBy
	return &pkgmodels.DownloadJob{ID: "job-1", Kind: kind, RequestedBy: requestedBy}, nil
}
func (f *fakeDownloads) LastDownload(context.Context) (*time.Time, error) { return nil, nil }

type fakeLog struct{ text string }

func (f *fakeLog) Get(context.Context) (string, error) { return f.text, nil }
func (f *fakeLog) Clear(ctx context.Context, cursor services.CursorResetter) error {
	f.text = ""
	return cursor.ResetCursor(ctx)
}

type fakeCategories struct{}

func (fakeCategories) SyncCategories(context.Context) (int, error) { return 3, nil }

type fakeTranslations struct{}

func (fakeTranslations) Process(context.Context) (*models.TranslationTable, error) {
	t := models.NewTranslationTable()
	t.Nomenclature["u1"] = map[string]string{"name": "Produs"}
	return t, nil
}

type fakeCatalog struct{ records []models.ProductRecord }

func (f *fakeCatalog) Records(context.Context) ([]models.ProductRecord, error) { return f.records, nil }
func (f *fakeCatalog) FindBySKU(_ context.Context, sku string) (*models.ProductRecord, error) {
	for i := range f.records {
		if f.records[i].SKU == sku {
			return &f.records[i], nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", sku, utils.ErrNotFound)
}

type fakeRefresher struct{}

func (fakeRefresher) Refresh(_ context.Context, rec models.ProductRecord) (models.Outcome, error) {
	return models.Outcome{Kind: models.OutcomeUpdated, SKU: rec.SKU, ProductID: "p-1"}, nil
}

type fakeLister struct{ got *pkgutils.Pagination }

func (f *fakeLister) ListProducts(_ context.Context, _ *models.ProductFilter, p *pkgutils.Pagination) ([]*models.Product, int64, error) {
	f.got = p
	return []*models.Product{{ID: "p-1", SKU: "LU1"}}, 31, nil
}

type testEnv struct {
	router http.Handler
	batch  *fakeBatch
	dl     *fakeDownloads
	log    *fakeLog
	lister *fakeLister
	jwt    *security.JWTManager
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jwtManager, err := security.NewJWTManager("test-secret-0123456789", time.Hour, "catalog-sync")
	require.NoError(t, err)
	token, err := jwtManager.Generate("op-1", "operator", nil, []string{security.PermissionSyncManage})
	require.NoError(t, err)

	env := &testEnv{
		batch:  &fakeBatch{},
		dl:     &fakeDownloads{},
		log:    &fakeLog{text: "[2024-01-01 10:00:00] Начинаем\n"},
		lister: &fakeLister{},
		jwt:    jwtManager,
		token:  token,
	}
	h := handlers.NewSyncHandler(handlers.SyncDeps{
		Batch:        env.batch,
		Downloads:    env.dl,
		SyncLog:      env.log,
		Categories:   fakeCategories{},
		Translations: fakeTranslations{},
		Catalog: &fakeCatalog{records: []models.ProductRecord{
			{UUID: "u1", Code: "1", SKU: "LU1", Name: "Товар", Active: true},
		}},
		Refresher: fakeRefresher{},
		Products:  env.lister,
		Logger:    logger.NewNopLogger(),
	})
	env.router = SetupRouter(h, jwtManager, logger.NewNopLogger(), RouterConfig{CORSAllowedOrigins: []string{"*"}})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/batch", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := env.jwt.Generate("op-2", "viewer", nil, []string{"catalog:read"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/batch", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBatch(t *testing.T) {
	env := newTestEnv(t)
	env.batch.cursor = 10

	rec := env.do(t, http.MethodGet, "/api/v1/sync/batch", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	progress := data["progress"].(map[string]interface{})
	assert.Equal(t, float64(25), progress["percentage"])
	assert.Equal(t, "run-1", data["state"].(map[string]interface{})["run_id"])
}

func TestStartBatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync/batch/start", `{"batch_size": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, env.batch.startSize)

	rec = env.do(t, http.MethodPost, "/api/v1/sync/batch/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.batch.startSize)
}

func TestStartBatch_InProgressIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.batch.startErr = utils.ErrBatchInProgress

	rec := env.do(t, http.MethodPost, "/api/v1/sync/batch/start", `{"batch_size": 10}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "batch_in_progress", decode(t, rec)["error"])
}

func TestScheduleDownload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync/downloads/nomenclature", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, pkgmodels.JobNomenclature, env.dl.kind)
	assert.Equal(t, "operator", env.dl.requestedBy)

	rec = env.do(t, http.MethodPost, "/api/v1/sync/downloads/everything", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCursorRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/sync/cursor", `{"offset": 100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(40), decode(t, rec)["data"].(map[string]interface{})["offset"])

	rec = env.do(t, http.MethodPut, "/api/v1/sync/cursor", `{"offset": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/sync/cursor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.batch.resetCalled)
}

func TestClearLogResetsCursor(t *testing.T) {
	env := newTestEnv(t)
	env.batch.cursor = 12

	rec := env.do(t, http.MethodGet, "/api/v1/sync/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["data"].(map[string]interface{})["log"], "Начинаем")

	rec = env.do(t, http.MethodDelete, "/api/v1/sync/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.log.text)
	assert.True(t, env.batch.resetCalled)
	assert.Equal(t, 0, env.batch.cursor)
}

func TestExportCatalog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/catalog/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	sku, err := f.GetCellValue("Каталог", "C2")
	require.NoError(t, err)
	assert.Equal(t, "LU1", sku)
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/products?page=2&page_size=10&sort_by=password", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.lister.got)
	assert.Equal(t, 2, env.lister.got.Page)
	assert.Equal(t, "", env.lister.got.SortBy)

	meta := decode(t, rec)["meta"].(map[string]interface{})
	pagination := meta["pagination"].(map[string]interface{})
	assert.Equal(t, float64(4), pagination["total_pages"])
	assert.Equal(t, true, pagination["has_next"])
}

func TestRefreshProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync/products/LU1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", decode(t, rec)["data"].(map[string]interface{})["kind"])

	rec = env.do(t, http.MethodPost, "/api/v1/sync/products/LU404/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
