package services

import (
	"context"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageRecord(main string, uuids ...string) models.ProductRecord {
	rec := models.ProductRecord{UUID: "u1", SKU: "LU1", MainImageUUID: main}
	for _, id := range uuids {
		rec.Images = append(rec.Images, models.ImageRef{UUID: id, URL: "http://img/" + id})
	}
	return rec
}

func TestImagePipeline_FeaturedAndGallery(t *testing.T) {
	tests := []struct {
		name         string
		rec          models.ProductRecord
		fail         map[string]bool
		wantFeatured string
		wantGallery  string
		wantMedia    int
	}{
		{
			name:         "main image is featured",
			rec:          imageRecord("i2", "i1", "i2", "i3"),
			wantFeatured: "m2",
			wantGallery:  "m1,m3",
			wantMedia:    3,
		},
		{
			name:         "first downloaded without main",
			rec:          imageRecord("", "i1", "i2"),
			wantFeatured: "m1",
			wantGallery:  "m2",
			wantMedia:    2,
		},
		{
			name:         "failed download is skipped",
			rec:          imageRecord("i1", "i1", "i2", "i3"),
			fail:         map[string]bool{"http://img/i1": true},
			wantFeatured: "m1",
			wantGallery:  "m2",
			wantMedia:    2,
		},
		{
			name:         "single image has no gallery",
			rec:          imageRecord("", "i1"),
			wantFeatured: "m1",
			wantMedia:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			pipeline := NewImagePipeline(&fakeDownloader{fail: tt.fail}, store, nopLogger)

			require.NoError(t, pipeline.Process(context.Background(), "p1", tt.rec))

			assert.Len(t, store.media, tt.wantMedia)
			assert.Equal(t, tt.wantFeatured, store.featured["p1"])
			assert.Equal(t, tt.wantGallery, store.gallery["p1"])
		})
	}
}

func TestImagePipeline_AllFailed(t *testing.T) {
	store := newFakeStore()
	downloader := &fakeDownloader{fail: map[string]bool{"http://img/i1": true}}
	pipeline := NewImagePipeline(downloader, store, nopLogger)

	require.NoError(t, pipeline.Process(context.Background(), "p1", imageRecord("i1", "i1")))

	assert.Empty(t, store.media)
	assert.NotContains(t, store.featured, "p1")
}
