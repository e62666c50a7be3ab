package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgutils "github.com/athebyme/gomarket-platform/catalog-sync/pkg/utils"
)

var nopLogger = logger.NewNopLogger()

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// memState StatePort в памяти. failCAS заставляет столько обменов вернуть false
type memState struct {
	mu      sync.Mutex
	data    map[string][]byte
	failCAS int
}

func newMemState() *memState {
	return &memState{data: map[string][]byte{}}
}

func (s *memState) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memState) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memState) CompareAndSwap(_ context.Context, key string, prev, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCAS > 0 {
		s.failCAS--
		return false, nil
	}
	cur, ok := s.data[key]
	if prev == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(cur, prev) {
		return false, nil
	}
	s.data[key] = append([]byte(nil), next...)
	return true, nil
}

func (s *memState) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeTransport сценарий транспорта учетной системы
type fakeTransport struct {
	mu       sync.Mutex
	requests []models.RemoteRequest
	readyN   int
	fetchN   int

	requestData func(req models.RemoteRequest) (string, error)
	isReady     func(n int) (bool, error)
	getData     func(n int) (*models.RemoteResponse, error)
}

func (t *fakeTransport) RequestData(_ context.Context, req models.RemoteRequest) (string, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.requestData == nil {
		return "req-1", nil
	}
	return t.requestData(req)
}

func (t *fakeTransport) IsReady(_ context.Context, _ string) (bool, error) {
	t.mu.Lock()
	t.readyN++
	n := t.readyN
	t.mu.Unlock()
	if t.isReady == nil {
		return true, nil
	}
	return t.isReady(n)
}

func (t *fakeTransport) GetDataByID(_ context.Context, _ string) (*models.RemoteResponse, error) {
	t.mu.Lock()
	t.fetchN++
	n := t.fetchN
	t.mu.Unlock()
	return t.getData(n)
}

// dataResponse ответ вида return.data
func dataResponse(payload string) *models.RemoteResponse {
	return &models.RemoteResponse{Body: node("GetDataByIDResponse", node("return", leaf("data", payload)))}
}

// fakeSource остатки и цены. calls хранит порядок вызовов
type fakeSource struct {
	mu           sync.Mutex
	stock        map[string]int
	price        map[string]*float64
	defaultStock int
	defaultPrice *float64
	stockErr     error
	priceErr     error
	calls        []string
	// onStock вызывается перед каждым запросом остатка
	onStock func()
}

func newFakeSource(stock int, price float64) *fakeSource {
	return &fakeSource{
		stock:        map[string]int{},
		price:        map[string]*float64{},
		defaultStock: stock,
		defaultPrice: &price,
	}
}

func (f *fakeSource) GetStock(_ context.Context, uuid string) (int, error) {
	if f.onStock != nil {
		f.onStock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stock:"+uuid)
	if f.stockErr != nil {
		return 0, f.stockErr
	}
	if v, ok := f.stock[uuid]; ok {
		return v, nil
	}
	return f.defaultStock, nil
}

func (f *fakeSource) GetPrice(_ context.Context, uuid string) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "price:"+uuid)
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	if v, ok := f.price[uuid]; ok {
		return v, nil
	}
	return f.defaultPrice, nil
}

func (f *fakeSource) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// fakeStore локальный каталог в памяти
type fakeStore struct {
	mu          sync.Mutex
	products    map[string]*models.Product
	categories  map[string]*models.ProductCategory
	media       []*models.ProductMedia
	featured    map[string]string
	gallery     map[string]string
	created     []string
	seq         int
	createErr   error
	categoryErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:    map[string]*models.Product{},
		categories:  map[string]*models.ProductCategory{},
		featured:    map[string]string{},
		gallery:     map[string]string{},
		categoryErr: map[string]error{},
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *fakeStore) FindProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CreateProduct(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	product.ID = s.nextID("p")
	cp := *product
	s.products[product.SKU] = &cp
	return nil
}

func (s *fakeStore) UpdateProduct(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *product
	s.products[product.SKU] = &cp
	return nil
}

func (s *fakeStore) ListProducts(_ context.Context, _ *models.ProductFilter, _ *pkgutils.Pagination) ([]*models.Product, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) AttachMedia(_ context.Context, media *models.ProductMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	media.ID = fmt.Sprintf("m%d", len(s.media)+1)
	s.media = append(s.media, media)
	return nil
}

func (s *fakeStore) SetProductMedia(_ context.Context, productID, featuredMediaID, gallery string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featured[productID] = featuredMediaID
	s.gallery[productID] = gallery
	return nil
}

func (s *fakeStore) FindCategory(_ context.Context, id string) (*models.ProductCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) FindCategoryByRemoteUUID(_ context.Context, remoteUUID string) (*models.ProductCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.RemoteUUID == remoteUUID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateCategory(_ context.Context, category *models.ProductCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.categoryErr[category.RemoteUUID]; err != nil {
		return err
	}
	category.ID = s.nextID("c")
	cp := *category
	s.categories[category.ID] = &cp
	s.created = append(s.created, category.RemoteUUID)
	return nil
}

func (s *fakeStore) UpdateCategory(_ context.Context, category *models.ProductCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

// fakeDownloader скачивание изображений. fail URL, которые вернут ошибку
type fakeDownloader struct {
	fail  map[string]bool
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, ref models.ImageRef) (*models.MediaFile, error) {
	d.calls++
	if d.fail[ref.URL] {
		return nil, errors.New("http 404")
	}
	return &models.MediaFile{
		SourceUUID: ref.UUID,
		SourceURL:  ref.URL,
		LocalPath:  "/media/" + ref.UUID + ".jpg",
		MimeType:   "image/jpeg",
		Size:       10,
	}, nil
}

// fakePayloads файлы выгрузок в памяти. Каждая запись меняет ModTime
type fakePayloads struct {
	mu      sync.Mutex
	files   map[string][]byte
	version int64
	loads   int
}

func newFakePayloads() *fakePayloads {
	return &fakePayloads{files: map[string][]byte{}}
}

func (p *fakePayloads) Save(_ context.Context, name string, data []byte) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[name] = append([]byte(nil), data...)
	p.version++
	return int64(len(data)), nil
}

func (p *fakePayloads) Load(_ context.Context, name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	data, ok := p.files[name]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return data, nil
}

func (p *fakePayloads) Stat(_ context.Context, name string) (*models.PayloadInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[name]
	if !ok {
		return nil, nil
	}
	return &models.PayloadInfo{Name: name, Size: int64(len(data)), ModTime: p.version}, nil
}

// fakeLocker блокировки в памяти
type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]string
	tokens int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.tokens++
	token := fmt.Sprintf("t%d", l.tokens)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// passTx выполняет функцию без транзакции
type passTx struct{}

func (passTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakePublisher запоминает опубликованные сообщения
type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	keys     []string
	messages [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, topic string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakePublisher) PublishWithKey(_ context.Context, topic, key string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.messages = append(p.messages, message)
	return nil
}

// fakeCatalog CatalogSource поверх среза
type fakeCatalog struct {
	records []models.ProductRecord
	err     error
}

func (c *fakeCatalog) Count(_ context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(c.records) == 0 {
		return 0, utils.ErrEmptyCatalog
	}
	return len(c.records), nil
}

func (c *fakeCatalog) Slice(_ context.Context, offset, limit int) ([]models.ProductRecord, error) {
	if c.err != nil {
		return nil, c.err
	}
	if offset >= len(c.records) {
		return nil, nil
	}
	return c.records[offset:min(offset+limit, len(c.records))], nil
}

// catalogRecords n активных записей с кодами 1..n
func catalogRecords(n int) []models.ProductRecord {
	records := make([]models.ProductRecord, 0, n)
	for i := 1; i <= n; i++ {
		code := fmt.Sprintf("%d", i)
		records = append(records, models.ProductRecord{
			UUID:   "u" + code,
			Code:   code,
			SKU:    FormatSKU(code),
			Name:   "Товар " + code,
			Active: true,
		})
	}
	return records
}

var _ interfaces.StatePort = (*memState)(nil)
