package services

import (
	"context"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const translationsXML = `<translations>
  <nomenclatureRequisitesValueList>
    <nomenclature>u1</nomenclature><requisite>name</requisite>
    <valueJSON>{"md":"Geacă"}</valueJSON>
  </nomenclatureRequisitesValueList>
  <objectPropertyValueList>
    <object>c1</object><objectType>category</objectType>
    <valueJSON>{"md":"Haine"}</valueJSON>
  </objectPropertyValueList>
</translations>`

func TestTranslationStore_Process(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	payloads := newFakePayloads()
	_, err := payloads.Save(ctx, "translations.xml", []byte(translationsXML))
	require.NoError(t, err)

	store := NewTranslationStore(state, payloads, newTestParser(), "translations.xml", time.Minute, nopLogger)
	assert.False(t, store.HasTranslations(ctx))

	table, err := store.Process(ctx)
	require.NoError(t, err)
	assert.Len(t, table.Nomenclature, 1)
	assert.Len(t, table.Properties, 1)

	assert.True(t, store.HasTranslations(ctx))
	name, ok := store.ProductTranslation(ctx, "u1", "name")
	assert.True(t, ok)
	assert.Equal(t, "Geacă", name)
	_, ok = store.ProductTranslation(ctx, "u1", "description")
	assert.False(t, ok)
	category, ok := store.PropertyTranslation(ctx, "c1")
	assert.True(t, ok)
	assert.Equal(t, "Haine", category)

	// таблица переживает перезапуск процесса
	reloaded := NewTranslationStore(state, payloads, newTestParser(), "translations.xml", time.Minute, nopLogger)
	name, ok = reloaded.ProductTranslation(ctx, "u1", "name")
	assert.True(t, ok)
	assert.Equal(t, "Geacă", name)
}

func TestTranslationStore_MissingFile(t *testing.T) {
	store := NewTranslationStore(newMemState(), newFakePayloads(), newTestParser(), "translations.xml", time.Minute, nopLogger)
	_, err := store.Process(context.Background())
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestTranslationStore_SeesTableReplacedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	payloads := newFakePayloads()
	_, err := payloads.Save(ctx, "translations.xml", []byte(translationsXML))
	require.NoError(t, err)

	api := NewTranslationStore(state, payloads, newTestParser(), "translations.xml", 10*time.Minute, nopLogger)
	worker := NewTranslationStore(state, payloads, newTestParser(), "translations.xml", 10*time.Minute, nopLogger)

	// пустая таблица попадает в горячий кэш api
	assert.False(t, api.HasTranslations(ctx))

	_, err = worker.Process(ctx)
	require.NoError(t, err)

	name, ok := api.ProductTranslation(ctx, "u1", "name")
	assert.True(t, ok)
	assert.Equal(t, "Geacă", name)
}
