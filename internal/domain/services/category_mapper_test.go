package services

import (
	"context"
	"errors"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	payload  string
	err      error
	requests []models.RemoteRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req models.RemoteRequest, _ models.PollProfile) (string, error) {
	f.requests = append(f.requests, req)
	return f.payload, f.err
}

const categoriesXML = `<?xml version="1.0" encoding="UTF-8"?>
<categories>
  <parent>
    <UUID>c1</UUID><name>._Одежда</name><code>Clothes</code>
    <parent>
      <UUID>c2</UUID><name>Куртки</name><code>Jackets</code>
      <parent><UUID>c3</UUID><name>Зимние</name><code></code></parent>
    </parent>
  </parent>
  <parent>
    <UUID>c4</UUID><name>Обувь</name><code>Shoes</code>
  </parent>
</categories>`

func newMapper(store *fakeStore, state *memState, fetcher RemoteFetcher) *CategoryMapper {
	parser := NewCatalogParser(DefaultSKUPrefix, DefaultTranslationLocale, nopLogger)
	return NewCategoryMapper(fetcher, parser, store, state, models.PollProfile{MaxAttempts: 1}, nopLogger)
}

func TestCategoryHelpers(t *testing.T) {
	assert.Equal(t, "Toys", CleanCategoryName(" .._Toys "))
	assert.Equal(t, "imbracaminte-accesorii", Slugify("Îmbrăcăminte & Accesorii"))
	assert.Equal(t, "", Slugify("  --  "))
}

func TestSyncCategories_PreOrder(t *testing.T) {
	store := newFakeStore()
	state := newMemState()
	fetcher := &fakeFetcher{payload: categoriesXML}
	mapper := newMapper(store, state, fetcher)

	processed, err := mapper.SyncCategories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, processed)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, store.created)
	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, models.ServiceParentList, fetcher.requests[0].Service)
	assert.Equal(t, "NOMENCLATURE", fetcher.requests[0].Params)

	mapping, err := mapper.Mapping(context.Background())
	require.NoError(t, err)
	require.Len(t, mapping, 4)

	root := store.categories[mapping["c1"]]
	child := store.categories[mapping["c2"]]
	leafCategory := store.categories[mapping["c3"]]
	assert.Equal(t, "Одежда", root.Name)
	assert.Equal(t, "clothes", root.Slug)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.ID, child.ParentID)
	assert.Equal(t, child.ID, leafCategory.ParentID)
	assert.Equal(t, "зимние", leafCategory.Slug)

	// повторная синхронизация ничего не создает
	processed, err = mapper.SyncCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	assert.Len(t, store.created, 4)
}

func TestSyncCategories_FailedNodeSkipsSubtree(t *testing.T) {
	store := newFakeStore()
	store.categoryErr["c1"] = errors.New("constraint")
	mapper := newMapper(store, newMemState(), &fakeFetcher{payload: categoriesXML})

	processed, err := mapper.SyncCategories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"c4"}, store.created)
}

func TestSyncCategories_FetchError(t *testing.T) {
	mapper := newMapper(newFakeStore(), newMemState(), &fakeFetcher{err: errors.New("timeout")})
	_, err := mapper.SyncCategories(context.Background())
	assert.Error(t, err)
}

func TestFindOrCreateCategory_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mapper := newMapper(store, newMemState(), nil)

	first, err := mapper.FindOrCreateCategory(ctx, "c9", "Аксессуары", "Acc", "")
	require.NoError(t, err)
	second, err := mapper.FindOrCreateCategory(ctx, "c9", "Аксессуары", "Acc", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.created, 1)

	_, err = mapper.FindOrCreateCategory(ctx, "", "Без UUID", "", "")
	assert.Error(t, err)
}

func TestFindOrCreateCategory_StaleMapping(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	state := newMemState()
	require.NoError(t, state.Set(ctx, categoryMappingKey, []byte(`{"c9":"deleted"}`)))
	mapper := newMapper(store, state, nil)

	id, err := mapper.FindOrCreateCategory(ctx, "c9", "Сумки", "Bags", "")
	require.NoError(t, err)

	assert.NotEqual(t, "deleted", id)
	mapping, err := mapper.Mapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, mapping["c9"])
}

func TestResolveLocalID(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.categories["c100"] = &models.ProductCategory{ID: "c100", Name: "Ремни", RemoteUUID: "r1"}
	state := newMemState()
	require.NoError(t, state.Set(ctx, categoryMappingKey, []byte(`{"r0":"c050"}`)))
	mapper := newMapper(store, state, nil)

	id, ok, err := mapper.ResolveLocalID(ctx, "r0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c050", id)

	id, ok, err = mapper.ResolveLocalID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c100", id)
	mapping, err := mapper.Mapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c100", mapping["r1"])

	_, ok, err = mapper.ResolveLocalID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = mapper.ResolveLocalID(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.created)
}
