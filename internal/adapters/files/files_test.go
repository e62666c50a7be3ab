package files

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadStore_SaveLoadStat(t *testing.T) {
	ctx := context.Background()
	store, err := NewPayloadStore(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	info, err := store.Stat(ctx, "nomenclature.xml")
	require.NoError(t, err)
	assert.Nil(t, info)

	_, err = store.Load(ctx, "nomenclature.xml")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	data := []byte("<nomenclature/>")
	n, err := store.Save(ctx, "nomenclature.xml", data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := store.Load(ctx, "nomenclature.xml")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err = store.Stat(ctx, "nomenclature.xml")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(len(data)), info.Size)
}

func TestPayloadStore_OverwriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewPayloadStore(dir, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = store.Save(ctx, "translations.xml", []byte("first"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "translations.xml", []byte("second"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "translations.xml", entries[0].Name())
}

func TestMediaDownloader_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d, err := NewMediaDownloader(dir, 5*time.Second, 0, logger.NewNopLogger())
	require.NoError(t, err)

	file, err := d.Download(context.Background(), models.ImageRef{UUID: "img-1", URL: srv.URL + "/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "img-1", file.SourceUUID)
	assert.Equal(t, "image/png", file.MimeType)
	assert.Equal(t, ".png", filepath.Ext(file.LocalPath))
	assert.Equal(t, int64(len("\x89PNG fake")), file.Size)

	_, err = d.Download(context.Background(), models.ImageRef{UUID: "img-2", URL: srv.URL + "/missing.jpg"})
	assert.Error(t, err)
}
